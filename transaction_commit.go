package transactions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Commit executes every staged operation of the transaction against its
// record store and memoizes the result. Calling Commit on a transaction
// which already holds a result returns that result without touching the
// record store. Per-operation failures are reported inside the result,
// only infrastructure failures are returned as errors, in which case the
// result stays unset and a later Commit resumes with the operations that
// were not applied yet.
//
// Before the first record store call the commit is claimed in the
// transaction store, and every applied operation is persisted as soon as it
// succeeds. Engines sharing the store fail with ErrConcurrentModification
// while another engine holds a live claim.
func (t *Transactions) Commit(ctx context.Context, txnID string) (resOut *CommitResult, errOut error) {
	ctx, span := t.startSpan(ctx, "Commit", attribute.String("txn", txnID))
	startTime := time.Now()
	defer func() {
		endSpan(span, errOut)
		label := resultLabel(errOut)
		if errOut == nil {
			label = resOut.Status.String()
		}
		commitCounter.WithLabelValues(label).Inc()
		commitDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	if err := t.latches.acquire(ctx, txnID); err != nil {
		return nil, err
	}
	defer t.latches.release(txnID)

	// A commit which got the latch runs to completion.
	ctx = detachContext(ctx)

	txn, rev, err := t.loadTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}

	if txn.result != nil {
		return txn.result, nil
	}

	if txn.claimedByOther(t.instanceID, time.Now()) {
		return nil, errors.Wrapf(ErrConcurrentModification,
			"transaction %s is being committed by %s", txnID, txn.claim.owner)
	}

	recordStore, err := t.config.RecordStoreProvider(txn.collectionID)
	if err != nil {
		return nil, err
	}

	versioned, err := t.checkCommitEpoch(ctx, recordStore, txn)
	if err != nil {
		return nil, err
	}

	if txn.claim != nil && txn.claim.owner != t.instanceID {
		t.logger.Warn("taking over expired commit claim",
			zap.String("txn", txnID),
			zap.String("owner", txn.claim.owner))
	}

	working := txn.clone()
	rev, err = t.claimCommit(ctx, working, rev)
	if err != nil {
		if errors.Is(err, ErrRevisionMismatch) {
			return t.resolveLostCommit(ctx, txnID)
		}
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(working.operations))
	for _, staged := range working.operations {
		if isWithdrawn(staged.Operation) {
			continue
		}

		if staged.Applied != nil {
			outcomes = append(outcomes, *staged.Applied)
			continue
		}

		outcome, err := t.executeOperation(ctx, txnID, recordStore, versioned, staged)
		if err != nil {
			return nil, t.abortCommit(ctx, working, rev, err)
		}

		if outcome.Succeeded() {
			applied := outcome
			staged.Applied = &applied
			staged.Failed = false

			newRev, err := t.claimCommit(ctx, working, rev)
			if err != nil {
				if errors.Is(err, ErrRevisionMismatch) {
					t.logger.Error("commit claim lost after applying operation",
						zap.String("txn", txnID),
						zap.Int64("op", int64(staged.OpID)))
					return nil, errors.Wrapf(ErrConcurrentModification,
						"transaction %s: claim lost after operation %d", txnID, staged.OpID)
				}
				return nil, t.abortCommit(ctx, working, rev, err)
			}
			rev = newRev

			if err := t.hooks.AfterOperationCommit(txnID, staged.OpID); err != nil {
				return nil, t.abortCommit(ctx, working, rev, err)
			}
		} else {
			staged.Failed = true
		}

		outcomes = append(outcomes, outcome)
	}

	result := &CommitResult{
		Status:   TransactionStatusCommitted,
		Outcomes: outcomes,
	}
	for _, outcome := range outcomes {
		if !outcome.Succeeded() {
			result.Status = TransactionStatusErrors
			break
		}
	}

	if err := t.hooks.BeforeResultPersisted(txnID); err != nil {
		return nil, t.abortCommit(ctx, working, rev, err)
	}

	working.result = result
	working.status = result.Status
	working.claim = nil

	if _, err := t.saveTransaction(ctx, working, rev); err != nil {
		if errors.Is(err, ErrRevisionMismatch) {
			return t.resolveLostCommit(ctx, txnID)
		}
		return nil, err
	}

	t.logger.Debug("transaction committed",
		zap.String("txn", txnID),
		zap.Stringer("status", result.Status),
		zap.Int("outcomes", len(result.Outcomes)))

	return result, nil
}

// checkCommitEpoch reports whether the collection is versioned and fails when
// its epoch moved since the transaction was created.
func (t *Transactions) checkCommitEpoch(ctx context.Context, recordStore RecordStore, txn *Transaction) (bool, error) {
	opCtx, cancel := operationContext(ctx, t.config.OperationTimeout)
	defer cancel()

	current, versioned, err := recordStore.Versioning(opCtx)
	if err != nil {
		return false, err
	}

	if versioned && txn.epoch != nil && *txn.epoch != current {
		return false, errors.Wrapf(ErrEpochMismatch,
			"collection epoch moved from %d to %d", *txn.epoch, current)
	}

	return versioned, nil
}

func (t *Transactions) executeOperation(
	ctx context.Context,
	txnID string,
	recordStore RecordStore,
	versioned bool,
	staged *StagedOperation,
) (Outcome, error) {
	action := staged.Operation.Action()
	outcome := Outcome{
		OpID:   staged.OpID,
		Action: action,
	}

	if err := t.hooks.BeforeOperationCommit(txnID, staged.OpID); err != nil {
		return outcome, err
	}

	opCtx, cancel := operationContext(ctx, t.config.OperationTimeout)
	defer cancel()

	var err error
	switch op := staged.Operation.(type) {
	case CreateOperation:
		var id RecordID
		var version Version
		id, version, err = recordStore.Create(opCtx, op.Record)
		if err == nil {
			outcome.RecordID = id
			if versioned {
				outcome.Version = &version
			}
		}
	case UpdateOperation:
		outcome.RecordID = op.TargetID
		err = checkVersion(opCtx, recordStore, versioned, op.TargetID, op.ExpectedVersion)
		if err == nil {
			var version Version
			version, err = recordStore.Update(opCtx, op.TargetID, op.Record)
			if err == nil && versioned {
				outcome.Version = &version
			}
		}
	case DeleteOperation:
		outcome.RecordID = op.TargetID
		err = checkVersion(opCtx, recordStore, versioned, op.TargetID, op.ExpectedVersion)
		if err == nil {
			err = recordStore.Delete(opCtx, op.TargetID)
		}
	default:
		return outcome, errors.Wrapf(ErrIllegalState, "unexpected operation type %T", staged.Operation)
	}

	if err != nil {
		opErr, ok := operationFailed(err)
		if !ok {
			operationCounter.WithLabelValues(string(action), "aborted").Inc()
			return outcome, errors.Wrapf(err, "operation %d", staged.OpID)
		}

		operationCounter.WithLabelValues(string(action), string(opErr.Kind)).Inc()
		t.logger.Debug("operation failed",
			zap.String("txn", txnID),
			zap.Int64("op", int64(staged.OpID)),
			zap.String("kind", string(opErr.Kind)),
			zap.String("message", opErr.Message))

		outcome.Err = opErr
		return outcome, nil
	}

	operationCounter.WithLabelValues(string(action), "ok").Inc()
	return outcome, nil
}

// claimCommit writes working with a renewed commit claim of this engine and
// returns the new revision.
func (t *Transactions) claimCommit(ctx context.Context, working *Transaction, rev Revision) (Revision, error) {
	working.claim = &commitClaim{
		owner:     t.instanceID,
		expiresAt: time.Now().Add(t.config.CommitLeaseTime),
	}

	return t.saveTransaction(ctx, working, rev)
}

// abortCommit persists the operations applied so far without a result,
// releases the commit claim and returns cause.
func (t *Transactions) abortCommit(ctx context.Context, working *Transaction, rev Revision, cause error) error {
	t.logger.Warn("commit aborted",
		zap.String("txn", working.id),
		zap.Error(cause))

	working.claim = nil
	if _, err := t.saveTransaction(ctx, working, rev); err != nil {
		t.logger.Error("failed to persist applied operations",
			zap.String("txn", working.id),
			zap.Error(err))
	}

	return cause
}

// resolveLostCommit is called when the result write lost against another
// writer. A result written by that writer is returned as ours.
func (t *Transactions) resolveLostCommit(ctx context.Context, txnID string) (*CommitResult, error) {
	txn, _, err := t.loadTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}

	if txn.result != nil {
		return txn.result, nil
	}

	return nil, errors.Wrapf(ErrConcurrentModification, "transaction %s", txnID)
}
