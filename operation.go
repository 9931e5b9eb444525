package transactions

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// OpID is the client assigned identifier of an operation within a transaction.
type OpID int64

// OperationAction is the action name of an operation as it appears on the wire.
type OperationAction string

const (
	// ActionCreate creates a new record.
	ActionCreate = OperationAction("feature.create")

	// ActionUpdate updates an existing record.
	ActionUpdate = OperationAction("feature.update")

	// ActionDelete deletes an existing record.
	ActionDelete = OperationAction("feature.delete")
)

// Operation is a staged mutation. It is one of CreateOperation,
// UpdateOperation, DeleteOperation or WithdrawnOperation.
type Operation interface {
	// Action returns the wire action of the operation, or an empty string
	// for a withdrawn operation.
	Action() OperationAction

	isOperation()
}

// CreateOperation creates a new record in the collection.
type CreateOperation struct {
	Record Record
}

// UpdateOperation updates an existing record. ExpectedVersion, when set,
// enables the optimistic version check on versioned collections.
type UpdateOperation struct {
	TargetID        RecordID
	ExpectedVersion *Version
	Record          Record
}

// DeleteOperation deletes an existing record.
type DeleteOperation struct {
	TargetID        RecordID
	ExpectedVersion *Version
}

// WithdrawnOperation marks an opId that was submitted and then dropped
// before commit.
type WithdrawnOperation struct{}

// Action returns ActionCreate.
func (CreateOperation) Action() OperationAction { return ActionCreate }

// Action returns ActionUpdate.
func (UpdateOperation) Action() OperationAction { return ActionUpdate }

// Action returns ActionDelete.
func (DeleteOperation) Action() OperationAction { return ActionDelete }

// Action returns an empty action.
func (WithdrawnOperation) Action() OperationAction { return "" }

func (CreateOperation) isOperation()    {}
func (UpdateOperation) isOperation()    {}
func (DeleteOperation) isOperation()    {}
func (WithdrawnOperation) isOperation() {}

var jsonNull = []byte("null")

func isNullBody(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull)
}

// DecodeOperation parses a single operation body. An empty or null body
// decodes to WithdrawnOperation.
func DecodeOperation(data []byte) (Operation, error) {
	if isNullBody(data) {
		return WithdrawnOperation{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var op jsonOperation
	if err := dec.Decode(&op); err != nil {
		return nil, errors.Wrap(ErrInvalidOperation, err.Error())
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.Wrap(ErrInvalidOperation, "unexpected data after operation body")
	}

	if op.VID != nil && *op.VID <= 0 {
		return nil, errors.Wrapf(ErrInvalidOperation, "invalid version id %d", *op.VID)
	}

	switch op.Action {
	case ActionCreate:
		if op.FID != nil {
			return nil, errors.Wrap(ErrInvalidOperation, "feature id is not allowed for create")
		}
		if op.VID != nil {
			return nil, errors.Wrap(ErrInvalidOperation, "version id is not allowed for create")
		}
		return CreateOperation{
			Record: Record{Geom: op.Geom, Fields: op.Fields},
		}, nil
	case ActionUpdate:
		if op.FID == nil || *op.FID <= 0 {
			return nil, errors.Wrap(ErrInvalidOperation, "update requires a positive feature id")
		}
		return UpdateOperation{
			TargetID:        *op.FID,
			ExpectedVersion: op.VID,
			Record:          Record{Geom: op.Geom, Fields: op.Fields},
		}, nil
	case ActionDelete:
		if op.FID == nil || *op.FID <= 0 {
			return nil, errors.Wrap(ErrInvalidOperation, "delete requires a positive feature id")
		}
		if op.Geom != nil || op.Fields != nil {
			return nil, errors.Wrap(ErrInvalidOperation, "delete does not accept a record payload")
		}
		return DeleteOperation{
			TargetID:        *op.FID,
			ExpectedVersion: op.VID,
		}, nil
	case "":
		return nil, errors.Wrap(ErrInvalidOperation, "missing action")
	}

	return nil, errors.Wrapf(ErrInvalidOperation, "unknown action %q", op.Action)
}

// EncodeOperation produces the canonical body of an operation. Encoding the
// same operation twice always yields identical bytes.
func EncodeOperation(op Operation) ([]byte, error) {
	var jsonOp jsonOperation

	switch o := op.(type) {
	case nil, WithdrawnOperation:
		return jsonNull, nil
	case CreateOperation:
		jsonOp.Action = ActionCreate
		jsonOp.Geom = o.Record.Geom
		jsonOp.Fields = o.Record.Fields
	case UpdateOperation:
		fid := o.TargetID
		jsonOp.Action = ActionUpdate
		jsonOp.FID = &fid
		jsonOp.VID = o.ExpectedVersion
		jsonOp.Geom = o.Record.Geom
		jsonOp.Fields = o.Record.Fields
	case DeleteOperation:
		fid := o.TargetID
		jsonOp.Action = ActionDelete
		jsonOp.FID = &fid
		jsonOp.VID = o.ExpectedVersion
	default:
		return nil, errors.Wrapf(ErrIllegalState, "unexpected operation type %T", op)
	}

	return json.Marshal(jsonOp)
}

func operationsEqual(a, b Operation) bool {
	aBytes, err := EncodeOperation(a)
	if err != nil {
		return false
	}
	bBytes, err := EncodeOperation(b)
	if err != nil {
		return false
	}

	return bytes.Equal(aBytes, bBytes)
}

func isWithdrawn(op Operation) bool {
	_, ok := op.(WithdrawnOperation)
	return ok
}

// SubmittedOperation is one (opId, body) pair of a submission. A nil or null
// Body withdraws the opId.
type SubmittedOperation struct {
	OpID OpID
	Body json.RawMessage
}

// NewSubmittedOperation encodes op into a submission pair.
func NewSubmittedOperation(opID OpID, op Operation) (SubmittedOperation, error) {
	body, err := EncodeOperation(op)
	if err != nil {
		return SubmittedOperation{}, err
	}

	return SubmittedOperation{
		OpID: opID,
		Body: body,
	}, nil
}

// DecodeSubmission parses a `[[opId, body|null], ...]` batch. Bodies are
// left raw, they are decoded when the batch is merged into a transaction.
func DecodeSubmission(data []byte) ([]SubmittedOperation, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, errors.Wrap(ErrInvalidOperation, err.Error())
	}

	ops := make([]SubmittedOperation, 0, len(pairs))
	for pairIdx, pairData := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(pairData, &pair); err != nil || len(pair) != 2 {
			return nil, errors.Wrapf(ErrInvalidOperation, "item %d is not an [opId, body] pair", pairIdx)
		}

		var opID OpID
		if err := json.Unmarshal(pair[0], &opID); err != nil {
			return nil, errors.Wrapf(ErrInvalidOperation, "item %d has an invalid opId", pairIdx)
		}
		if opID <= 0 {
			return nil, errors.Wrapf(ErrInvalidOperation, "item %d has a non-positive opId", pairIdx)
		}

		ops = append(ops, SubmittedOperation{
			OpID: opID,
			Body: pair[1],
		})
	}

	return ops, nil
}
