package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/geodata/featuretxn"

// Transactions is the top level wrapper object for all transactions
// handling.
type Transactions struct {
	config  Config
	store   TransactionStore
	latches *latches
	logger  *zap.Logger
	tracer  trace.Tracer
	hooks   TransactionHooks
	cleaner Cleaner

	// instanceID owns the commit claims written by this engine.
	instanceID string
}

// Init will initialize the transactions library and return a Transactions
// object which can be used to stage and commit transactions.
func Init(config *Config) (*Transactions, error) {
	defaultConfig := &Config{
		OperationTimeout: 2500 * time.Millisecond,
		CommitLeaseTime:  15 * time.Second,
		CleanupQueueSize: 100000,
		RecordStoreProvider: func(collectionID string) (RecordStore, error) {
			return nil, errors.New("no record store provider was specified")
		},
	}

	if config == nil {
		config = defaultConfig
	}

	if config.OperationTimeout == 0 {
		config.OperationTimeout = defaultConfig.OperationTimeout
	}
	if config.CommitLeaseTime == 0 {
		config.CommitLeaseTime = defaultConfig.CommitLeaseTime
	}
	if config.CleanupQueueSize == 0 {
		config.CleanupQueueSize = defaultConfig.CleanupQueueSize
	}
	if config.RecordStoreProvider == nil {
		config.RecordStoreProvider = defaultConfig.RecordStoreProvider
	}
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(tracerName)
	}
	if config.Internal.Hooks == nil {
		config.Internal.Hooks = &DefaultHooks{}
	}
	if config.Internal.CleanUpHooks == nil {
		config.Internal.CleanUpHooks = &DefaultCleanupHooks{}
	}

	t := &Transactions{
		config:     *config,
		store:      config.Store,
		latches:    newLatches(),
		logger:     config.Logger,
		tracer:     config.Tracer,
		hooks:      config.Internal.Hooks,
		instanceID: uuid.New().String(),
	}
	t.cleaner = NewCleaner(t)

	return t, nil
}

// Config returns the config that was used during the initialization
// of this Transactions object.
func (t *Transactions) Config() Config {
	return t.config
}

// CreateTransaction creates a new open transaction against a collection and
// returns its id. The epoch must be supplied for versioned collections and
// must be absent otherwise.
func (t *Transactions) CreateTransaction(ctx context.Context, collectionID string, epoch *Epoch) (txnID string, errOut error) {
	ctx, span := t.startSpan(ctx, "CreateTransaction", attribute.String("collection", collectionID))
	defer func() { endSpan(span, errOut) }()

	recordStore, err := t.config.RecordStoreProvider(collectionID)
	if err != nil {
		return "", err
	}

	opCtx, cancel := operationContext(ctx, t.config.OperationTimeout)
	err = checkEpoch(opCtx, recordStore, epoch)
	cancel()
	if err != nil {
		return "", err
	}

	txn := newTransaction(uuid.New().String(), collectionID, epoch, time.Now())
	if _, err := t.saveTransaction(ctx, txn, 0); err != nil {
		return "", err
	}

	t.cleaner.AddRequest(&CleanupRequest{
		TransactionID: txn.id,
		readyTime:     txn.createdAt.Add(t.config.ExpiryTime),
	})

	transactionsCreated.Inc()
	t.logger.Debug("transaction created",
		zap.String("txn", txn.id),
		zap.String("collection", collectionID))

	return txn.id, nil
}

// GetTransaction returns a snapshot of a stored transaction.
func (t *Transactions) GetTransaction(ctx context.Context, txnID string) (*Transaction, error) {
	txn, _, err := t.loadTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// ReadResults returns the outcomes of the last commit in submission order.
// It fails with ErrResultsNotReady while the transaction is open.
func (t *Transactions) ReadResults(ctx context.Context, txnID string) ([]Outcome, error) {
	txn, _, err := t.loadTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}

	if txn.status == TransactionStatusOpen || txn.result == nil {
		return nil, errors.Wrapf(ErrResultsNotReady, "transaction %s has not been committed", txnID)
	}

	outcomes := make([]Outcome, len(txn.result.Outcomes))
	copy(outcomes, txn.result.Outcomes)
	return outcomes, nil
}

// Dispose deletes a transaction regardless of its status.
func (t *Transactions) Dispose(ctx context.Context, txnID string) (errOut error) {
	ctx, span := t.startSpan(ctx, "Dispose", attribute.String("txn", txnID))
	defer func() { endSpan(span, errOut) }()

	if err := t.latches.acquire(ctx, txnID); err != nil {
		return err
	}
	defer t.latches.release(txnID)

	if err := t.store.Delete(ctx, txnID); err != nil {
		return err
	}

	transactionsDisposed.Inc()
	t.logger.Debug("transaction disposed", zap.String("txn", txnID))

	return nil
}

// Close will shut down this Transactions object and release its store.
func (t *Transactions) Close() error {
	t.cleaner.Close()
	return t.store.Close()
}

// Internal returns an InternalTransactions object which exposes the
// internals of the engine.
// Internal: This should never be used and is not supported.
func (t *Transactions) Internal() *InternalTransactions {
	return &InternalTransactions{
		parent: t,
	}
}

// InternalTransactions exposes engine internals for tests and tooling.
// Internal: This should never be used and is not supported.
type InternalTransactions struct {
	parent *Transactions
}

// ForceCleanupQueue runs cleanup for every queued transaction.
func (it *InternalTransactions) ForceCleanupQueue(ctx context.Context) []CleanupAttempt {
	return it.parent.cleaner.ForceCleanupQueue(ctx)
}

// CleanupQueueLength returns the number of transactions awaiting expiry.
func (it *InternalTransactions) CleanupQueueLength() int32 {
	return it.parent.cleaner.QueueLength()
}

func (t *Transactions) loadTransaction(ctx context.Context, txnID string) (*Transaction, Revision, error) {
	data, rev, err := t.store.Get(ctx, txnID)
	if err != nil {
		return nil, 0, err
	}

	txn, err := deserializeTransaction(data)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to decode transaction %s", txnID)
	}

	return txn, rev, nil
}

func (t *Transactions) saveTransaction(ctx context.Context, txn *Transaction, expected Revision) (Revision, error) {
	data, err := serializeTransaction(txn)
	if err != nil {
		return 0, err
	}

	return t.store.Put(ctx, txn.id, data, expected)
}

func (t *Transactions) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, classifyError(err).String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
