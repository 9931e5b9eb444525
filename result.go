package transactions

// Outcome represents the result of a single staged operation after commit.
// Exactly one of RecordID or Err is meaningful: Err is nil on success.
type Outcome struct {
	OpID   OpID
	Action OperationAction

	// RecordID is the id assigned by the store for a create, or the target
	// id for an update or delete.
	RecordID RecordID

	// Version is the resulting record version on versioned collections.
	Version *Version

	Err *OperationError
}

// Succeeded indicates whether the operation was applied.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// CommitResult represents the memoized result of committing a transaction.
type CommitResult struct {
	// Status is either TransactionStatusCommitted or TransactionStatusErrors.
	Status TransactionStatus

	// Outcomes holds one entry per non-withdrawn staged operation, in
	// submission order.
	Outcomes []Outcome
}

// Failures returns the failed outcomes in submission order.
func (r *CommitResult) Failures() []Outcome {
	var failures []Outcome
	for _, outcome := range r.Outcomes {
		if !outcome.Succeeded() {
			failures = append(failures, outcome)
		}
	}
	return failures
}
