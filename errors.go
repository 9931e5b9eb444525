package transactions

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransactionNotFound indicates the transaction id is unknown or was disposed.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCollectionNotFound indicates the target collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidState indicates the transaction no longer accepts the request.
	ErrInvalidState = errors.New("invalid transaction state")

	// ErrResultsNotReady indicates results were requested before a commit ran.
	ErrResultsNotReady = errors.New("results not ready")

	// ErrOperationConflict indicates an opId was resubmitted with a different body.
	ErrOperationConflict = errors.New("operation conflict")

	// ErrInvalidOperation indicates an operation body could not be decoded.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrEpochRequired indicates a versioned collection was targeted without an epoch.
	ErrEpochRequired = errors.New("epoch required")

	// ErrEpochMismatch indicates the supplied epoch is not the current epoch.
	ErrEpochMismatch = errors.New("epoch mismatch")

	// ErrEpochNotApplicable indicates an epoch was supplied for an unversioned collection.
	ErrEpochNotApplicable = errors.New("epoch not applicable")

	// ErrRecordNotFound indicates the target record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordConflict indicates the record version differs from the expected one.
	ErrRecordConflict = errors.New("record conflict")

	// ErrRecordInvalid indicates the record store rejected the record payload.
	ErrRecordInvalid = errors.New("record invalid")

	// ErrRevisionMismatch indicates a compare-and-set write lost against another writer.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrConcurrentModification is returned when a transaction was modified
	// by another process between read and write.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrForwardCompatibilityFailure indicates a stored transaction was
	// written in a format this version cannot read.
	ErrForwardCompatibilityFailure = errors.New("forward compatibility error")

	// ErrIllegalState is used for when the engine reaches a state it should never be in.
	ErrIllegalState = errors.New("illegal state")
)

func classifyError(err error) ErrorClass {
	ec := ErrorClassOther
	if errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrEpochRequired) ||
		errors.Is(err, ErrEpochNotApplicable) {
		ec = ErrorClassValidation
	} else if errors.Is(err, ErrOperationConflict) ||
		errors.Is(err, ErrEpochMismatch) ||
		errors.Is(err, ErrRecordConflict) ||
		errors.Is(err, ErrConcurrentModification) {
		ec = ErrorClassConflict
	} else if errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrCollectionNotFound) ||
		errors.Is(err, ErrRecordNotFound) {
		ec = ErrorClassNotFound
	} else if errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrResultsNotReady) {
		ec = ErrorClassState
	}

	return ec
}

// ClassifyError returns the ErrorClass of an error returned by this package.
func ClassifyError(err error) ErrorClass {
	return classifyError(err)
}

// OperationError describes why a single staged operation failed at commit.
type OperationError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (oe *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", oe.Kind, oe.Message)
}

// MarshalJSON will marshal this error for the wire.
func (oe *OperationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonOperationError{
		Error:      string(oe.Kind),
		StatusCode: oe.StatusCode,
		Message:    oe.Message,
	})
}

// UnmarshalJSON will unmarshal this error from the wire.
func (oe *OperationError) UnmarshalJSON(data []byte) error {
	var jsonErr jsonOperationError
	if err := json.Unmarshal(data, &jsonErr); err != nil {
		return err
	}

	oe.Kind = ErrorKind(jsonErr.Error)
	oe.StatusCode = jsonErr.StatusCode
	oe.Message = jsonErr.Message
	return nil
}

// operationFailed turns a record-level failure into an OperationError. The
// second return is false when err is not a record-level failure, which means
// the commit has to be aborted.
func operationFailed(err error) (*OperationError, bool) {
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return &OperationError{
			Kind:       ErrorKindNotFound,
			StatusCode: http.StatusNotFound,
			Message:    err.Error(),
		}, true
	case errors.Is(err, ErrRecordConflict):
		return &OperationError{
			Kind:       ErrorKindConflict,
			StatusCode: http.StatusConflict,
			Message:    err.Error(),
		}, true
	case errors.Is(err, ErrRecordInvalid):
		return &OperationError{
			Kind:       ErrorKindInvalid,
			StatusCode: http.StatusUnprocessableEntity,
			Message:    err.Error(),
		}, true
	}

	return nil, false
}
