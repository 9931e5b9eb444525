package transactions

import "context"

// Revision is the compare-and-set token of a stored transaction document.
// Zero never identifies a stored document.
type Revision uint64

// TransactionStore is the durable keyed storage of transaction documents.
type TransactionStore interface {
	// Get returns the document stored under id together with its revision.
	// It must wrap ErrTransactionNotFound when no document exists.
	Get(ctx context.Context, id string) ([]byte, Revision, error)

	// Put writes the document for id if the stored revision equals expected,
	// an expected revision of zero requires that no document exists. A
	// mismatch must wrap ErrRevisionMismatch.
	Put(ctx context.Context, id string, data []byte, expected Revision) (Revision, error)

	// Delete removes the document stored under id. It must wrap
	// ErrTransactionNotFound when no document exists.
	Delete(ctx context.Context, id string) error

	// Close releases the resources held by the store.
	Close() error
}
