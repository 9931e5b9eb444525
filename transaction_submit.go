package transactions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmitOperations merges a batch of operations into an open transaction.
// Either every pair of the batch is merged or the stored transaction is left
// untouched. Submitting to a transaction whose last commit reported errors
// re-opens it.
func (t *Transactions) SubmitOperations(ctx context.Context, txnID string, ops []SubmittedOperation) (errOut error) {
	ctx, span := t.startSpan(ctx, "SubmitOperations",
		attribute.String("txn", txnID),
		attribute.Int("ops", len(ops)))
	defer func() {
		endSpan(span, errOut)
		submissionCounter.WithLabelValues(resultLabel(errOut)).Inc()
	}()

	if err := t.latches.acquire(ctx, txnID); err != nil {
		return err
	}
	defer t.latches.release(txnID)

	txn, rev, err := t.loadTransaction(ctx, txnID)
	if err != nil {
		return err
	}

	if txn.status == TransactionStatusCommitted {
		return errors.Wrapf(ErrInvalidState, "transaction %s is already committed", txnID)
	}

	if txn.claimedByOther(t.instanceID, time.Now()) {
		return errors.Wrapf(ErrConcurrentModification, "transaction %s is being committed", txnID)
	}

	working := txn.clone()
	changed, err := mergeSubmission(working, ops)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if working.status == TransactionStatusErrors {
		working.status = TransactionStatusOpen
		working.result = nil
	}

	if err := t.hooks.BeforeSubmissionPersisted(txnID); err != nil {
		return err
	}

	if _, err := t.saveTransaction(ctx, working, rev); err != nil {
		if errors.Is(err, ErrRevisionMismatch) {
			return errors.Wrapf(ErrConcurrentModification, "transaction %s", txnID)
		}
		return err
	}

	t.logger.Debug("operations submitted",
		zap.String("txn", txnID),
		zap.Int("ops", len(ops)),
		zap.Int("staged", len(working.operations)))

	return nil
}

// mergeSubmission applies ops to txn in order and reports whether the staged
// set changed. On error txn is left partially merged and must be discarded.
func mergeSubmission(txn *Transaction, ops []SubmittedOperation) (bool, error) {
	changed := false

	for _, sub := range ops {
		if sub.OpID <= 0 {
			return false, errors.Wrapf(ErrInvalidOperation, "opId %d is not positive", sub.OpID)
		}

		op, err := DecodeOperation(sub.Body)
		if err != nil {
			return false, errors.WithMessagef(err, "operation %d", sub.OpID)
		}

		_, existing := txn.operations.find(sub.OpID)
		if existing == nil {
			txn.operations = append(txn.operations, &StagedOperation{
				OpID:      sub.OpID,
				Operation: op,
			})
			changed = true
			continue
		}

		if operationsEqual(existing.Operation, op) {
			continue
		}

		if existing.Applied != nil {
			return false, errors.Wrapf(ErrOperationConflict,
				"operation %d was already applied", sub.OpID)
		}

		if isWithdrawn(op) || existing.Failed {
			existing.Operation = op
			existing.Failed = false
			changed = true
			continue
		}

		return false, errors.Wrapf(ErrOperationConflict,
			"operation %d is already staged with a different body", sub.OpID)
	}

	return changed, nil
}
