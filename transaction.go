package transactions

import (
	"time"
)

// Transaction represents a single staged transaction as it is stored. The
// value returned by GetTransaction is a snapshot, mutating it has no effect
// on the stored transaction.
type Transaction struct {
	id           string
	collectionID string
	epoch        *Epoch
	status       TransactionStatus
	createdAt    time.Time

	operations stagedOperations
	result     *CommitResult
	claim      *commitClaim
}

// commitClaim marks a transaction whose commit is in progress. The owner
// renews it with every write it makes while committing.
type commitClaim struct {
	owner     string
	expiresAt time.Time
}

// claimedByOther reports whether a commit of another engine holds a claim
// which has not expired at now.
func (t *Transaction) claimedByOther(owner string, now time.Time) bool {
	return t.claim != nil && t.claim.owner != owner && now.Before(t.claim.expiresAt)
}

func newTransaction(id, collectionID string, epoch *Epoch, now time.Time) *Transaction {
	return &Transaction{
		id:           id,
		collectionID: collectionID,
		epoch:        epoch,
		status:       TransactionStatusOpen,
		createdAt:    now,
	}
}

// ID returns the transaction ID of this transaction.
func (t *Transaction) ID() string {
	return t.id
}

// CollectionID returns the collection this transaction targets.
func (t *Transaction) CollectionID() string {
	return t.collectionID
}

// Epoch returns the epoch captured at creation, or nil for transactions on
// unversioned collections.
func (t *Transaction) Epoch() *Epoch {
	if t.epoch == nil {
		return nil
	}
	epoch := *t.epoch
	return &epoch
}

// Status returns the current status of the transaction.
func (t *Transaction) Status() TransactionStatus {
	return t.status
}

// CreatedAt returns when the transaction was created.
func (t *Transaction) CreatedAt() time.Time {
	return t.createdAt
}

// Operations returns the staged operations in submission order.
func (t *Transaction) Operations() []StagedOperation {
	ops := make([]StagedOperation, len(t.operations))
	for i, staged := range t.operations {
		ops[i] = *staged
	}
	return ops
}

// Result returns the memoized commit result, or nil while the transaction
// is open.
func (t *Transaction) Result() *CommitResult {
	return t.result
}

// Committing reports whether a commit claim is stored on the transaction.
func (t *Transaction) Committing() bool {
	return t.claim != nil
}

func (t *Transaction) clone() *Transaction {
	cp := *t
	cp.operations = t.operations.clone()
	if t.claim != nil {
		claim := *t.claim
		cp.claim = &claim
	}
	return &cp
}
