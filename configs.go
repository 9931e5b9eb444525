package transactions

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config specifies various tunable options related to transactions.
type Config struct {
	// RecordStoreProvider resolves the record store of a collection.
	RecordStoreProvider RecordStoreProviderFn

	// Store holds the transaction documents. Defaults to a MemoryStore.
	Store TransactionStore

	// OperationTimeout bounds every record store call made during commit.
	OperationTimeout time.Duration

	// CommitLeaseTime is how long a commit claim keeps other engines sharing
	// the store from committing the same transaction. A claim left behind by
	// a crashed engine can be taken over once it expired.
	CommitLeaseTime time.Duration

	// ExpiryTime is the age after which a transaction is disposed by the
	// cleaner, whatever its status. Zero disables expiry.
	ExpiryTime time.Duration

	// CleanupQueueSize bounds the number of transactions awaiting expiry.
	CleanupQueueSize uint32

	// CleanupLostAttempts makes the cleaner scan the store on startup for
	// transactions created by earlier processes. The store must implement
	// TransactionLister.
	CleanupLostAttempts bool

	// Logger receives the engine logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Tracer is used to trace engine operations. Defaults to the global
	// tracer provider.
	Tracer trace.Tracer

	// Internal specifies a set of options for internal use.
	// Internal: This should never be used and is not supported.
	Internal struct {
		Hooks        TransactionHooks
		CleanUpHooks CleanUpHooks
	}
}
