// Copyright 2021 Couchbase
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transactions

import (
	"errors"
	"fmt"
)

// TransactionStatus represents the current status of a transaction.
type TransactionStatus int

const (
	// TransactionStatusUnknown indicates an error has occured.
	TransactionStatusUnknown = TransactionStatus(0)

	// TransactionStatusOpen indicates that the transaction accepts operations and
	// has not been committed yet.
	TransactionStatusOpen = TransactionStatus(1)

	// TransactionStatusCommitted indicates that every staged operation was applied.
	TransactionStatusCommitted = TransactionStatus(2)

	// TransactionStatusErrors indicates that the commit ran but at least one
	// operation failed.
	TransactionStatusErrors = TransactionStatus(3)
)

func (s TransactionStatus) String() string {
	switch s {
	case TransactionStatusOpen:
		return "open"
	case TransactionStatusCommitted:
		return "committed"
	case TransactionStatusErrors:
		return "errors"
	default:
		return fmt.Sprintf("unknown:%d", int(s))
	}
}

func transactionStatusFromString(status string) (TransactionStatus, error) {
	switch status {
	case "open":
		return TransactionStatusOpen, nil
	case "committed":
		return TransactionStatusCommitted, nil
	case "errors":
		return TransactionStatusErrors, nil
	}
	return TransactionStatusUnknown, errors.New("invalid transaction status string")
}

// ErrorClass describes the reason that a transaction error occurred.
type ErrorClass uint8

const (
	// ErrorClassOther indicates an error occurred because it did not fit into any other reason.
	ErrorClassOther ErrorClass = iota

	// ErrorClassValidation indicates the request was malformed and rejected
	// before any state change.
	ErrorClassValidation

	// ErrorClassConflict indicates the request conflicts with existing state.
	ErrorClassConflict

	// ErrorClassNotFound indicates the transaction, collection or record is missing.
	ErrorClassNotFound

	// ErrorClassState indicates the transaction is in the wrong lifecycle phase.
	ErrorClassState
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassOther:
		return "other"
	case ErrorClassValidation:
		return "validation"
	case ErrorClassConflict:
		return "conflict"
	case ErrorClassNotFound:
		return "not_found"
	case ErrorClassState:
		return "state"
	default:
		return fmt.Sprintf("unknown:%d", c)
	}
}

// ErrorKind is the stable machine-readable identifier of a per-operation
// commit failure.
type ErrorKind string

const (
	// ErrorKindNotFound is reported when the target record does not exist.
	ErrorKindNotFound = ErrorKind("feature.not_found")

	// ErrorKindConflict is reported when the record version does not match.
	ErrorKindConflict = ErrorKind("feature.conflict")

	// ErrorKindInvalid is reported when the store rejects the record payload.
	ErrorKindInvalid = ErrorKind("feature.invalid")
)
