package transactions

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	cleanupPollInterval = time.Second
	cleanupRetryDelay   = 10 * time.Second
)

// CleanupRequest represents a transaction which is to be disposed once it
// has expired.
type CleanupRequest struct {
	TransactionID string
	readyTime     time.Time
}

func (cr *CleanupRequest) ready() bool {
	return !time.Now().Before(cr.readyTime)
}

// CleanupAttempt represents the result of running cleanup for a transaction.
type CleanupAttempt struct {
	TransactionID string
	Success       bool
	// Disposed is false when the transaction was already gone.
	Disposed bool
	Err      error
}

// Cleaner disposes transactions which outlived Config.ExpiryTime.
type Cleaner interface {
	AddRequest(req *CleanupRequest) bool
	ForceCleanupQueue(ctx context.Context) []CleanupAttempt
	QueueLength() int32
	Close()
}

// NewCleaner returns a Cleaner for the given transactions object. When the
// expiry time is not set the returned Cleaner does nothing.
func NewCleaner(t *Transactions) Cleaner {
	if t.config.ExpiryTime <= 0 {
		return &noopCleaner{}
	}

	return startCleanupThread(t)
}

type noopCleaner struct {
}

func (nc *noopCleaner) AddRequest(req *CleanupRequest) bool {
	return true
}

func (nc *noopCleaner) ForceCleanupQueue(ctx context.Context) []CleanupAttempt {
	return nil
}

func (nc *noopCleaner) QueueLength() int32 {
	return 0
}

func (nc *noopCleaner) Close() {}

type stdCleaner struct {
	txns     *Transactions
	hooks    CleanUpHooks
	logger   *zap.Logger
	qSize    uint32
	q        delayQueue
	qLock    sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func startCleanupThread(t *Transactions) *stdCleaner {
	cleaner := &stdCleaner{
		txns:   t,
		hooks:  t.config.Internal.CleanUpHooks,
		logger: t.logger,
		qSize:  t.config.CleanupQueueSize,
		q:      make(delayQueue, 0, t.config.CleanupQueueSize),
		stop:   make(chan struct{}),
	}

	cleaner.wg.Add(1)
	go cleaner.processQ()

	if t.config.CleanupLostAttempts {
		cleaner.wg.Add(1)
		go func() {
			defer cleaner.wg.Done()
			cleaner.recoverLost()
		}()
	}

	return cleaner
}

// AddRequest queues req. It returns false when the queue is full.
func (c *stdCleaner) AddRequest(req *CleanupRequest) bool {
	c.qLock.Lock()
	defer c.qLock.Unlock()
	if c.q.Len() >= int(c.qSize) {
		c.logger.Warn("cleanup queue full, dropping request",
			zap.String("txn", req.TransactionID))
		return false
	}

	heap.Push(&c.q, req)
	return true
}

// PopRequest returns the next ready request, or nil when none is ready.
func (c *stdCleaner) PopRequest() *CleanupRequest {
	c.qLock.Lock()
	defer c.qLock.Unlock()

	next := c.q.peek()
	if next == nil || !next.ready() {
		return nil
	}

	return heap.Pop(&c.q).(*CleanupRequest)
}

// ForceCleanupQueue runs cleanup for every queued request whether or not it
// is ready. Requests for transactions which have not expired yet are queued
// again.
func (c *stdCleaner) ForceCleanupQueue(ctx context.Context) []CleanupAttempt {
	c.qLock.Lock()
	reqs := make([]*CleanupRequest, 0, c.q.Len())
	for c.q.Len() > 0 {
		reqs = append(reqs, heap.Pop(&c.q).(*CleanupRequest))
	}
	c.qLock.Unlock()

	results := make([]CleanupAttempt, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, c.CleanupTransaction(ctx, req))
	}

	return results
}

// QueueLength returns the number of queued requests.
func (c *stdCleaner) QueueLength() int32 {
	c.qLock.Lock()
	defer c.qLock.Unlock()
	return int32(c.q.Len())
}

// Close stops the cleanup goroutines and waits for them to exit.
func (c *stdCleaner) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

func (c *stdCleaner) processQ() {
	defer c.wg.Done()

	ticker := time.NewTicker(cleanupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		for {
			req := c.PopRequest()
			if req == nil {
				break
			}

			c.CleanupTransaction(context.Background(), req)

			select {
			case <-c.stop:
				return
			default:
			}
		}
	}
}

// CleanupTransaction disposes the transaction of req if it has expired. A
// transaction which has not expired yet, or whose cleanup failed, is queued
// again.
func (c *stdCleaner) CleanupTransaction(ctx context.Context, req *CleanupRequest) CleanupAttempt {
	attempt := CleanupAttempt{
		TransactionID: req.TransactionID,
	}

	if err := c.hooks.BeforeCleanup(req.TransactionID); err != nil {
		return c.retry(req, attempt, err)
	}

	disposed, notBefore, err := c.txns.disposeExpired(ctx, req.TransactionID)
	if err != nil {
		return c.retry(req, attempt, err)
	}

	if !notBefore.IsZero() {
		c.AddRequest(&CleanupRequest{
			TransactionID: req.TransactionID,
			readyTime:     notBefore,
		})
	}

	attempt.Success = true
	attempt.Disposed = disposed
	return attempt
}

func (c *stdCleaner) retry(req *CleanupRequest, attempt CleanupAttempt, err error) CleanupAttempt {
	c.logger.Warn("transaction cleanup failed",
		zap.String("txn", req.TransactionID),
		zap.Error(err))

	c.AddRequest(&CleanupRequest{
		TransactionID: req.TransactionID,
		readyTime:     time.Now().Add(cleanupRetryDelay),
	})

	attempt.Err = err
	return attempt
}

// disposeExpired deletes the transaction if it is older than the expiry
// time. For a transaction which has not expired yet it returns the time at
// which it will.
func (t *Transactions) disposeExpired(ctx context.Context, txnID string) (bool, time.Time, error) {
	opCtx, cancel := operationContext(ctx, t.config.OperationTimeout)
	defer cancel()

	if err := t.latches.acquire(opCtx, txnID); err != nil {
		return false, time.Time{}, err
	}
	defer t.latches.release(txnID)

	txn, _, err := t.loadTransaction(opCtx, txnID)
	if errors.Is(err, ErrTransactionNotFound) {
		return false, time.Time{}, nil
	} else if err != nil {
		return false, time.Time{}, err
	}

	expiresAt := txn.createdAt.Add(t.config.ExpiryTime)
	if time.Now().Before(expiresAt) {
		return false, expiresAt, nil
	}

	if err := t.store.Delete(opCtx, txnID); err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}

	transactionsExpired.Inc()
	t.logger.Info("expired transaction disposed",
		zap.String("txn", txnID),
		zap.Stringer("status", txn.status),
		zap.Time("created", txn.createdAt))

	return true, time.Time{}, nil
}
