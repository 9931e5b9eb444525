package transactions

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TransactionLister is implemented by a TransactionStore which can
// enumerate its documents. The cleaner uses it to find transactions left
// behind by a previous process.
type TransactionLister interface {
	// ForEach calls fn for every stored document. An entry which cannot be
	// read is passed with nil data. Returning an error from fn stops the
	// iteration.
	ForEach(ctx context.Context, fn func(id string, data []byte) error) error
}

// ProcessLostStats is the stats recorded when scanning a store for lost
// transactions.
type ProcessLostStats struct {
	NumEntries        int
	NumEntriesExpired int
	NumEntriesInvalid int
}

// recoverLost queues a cleanup request for every transaction found in the
// store. Transactions created by this process are queued twice, which is
// harmless: the second request finds nothing to dispose.
func (c *stdCleaner) recoverLost() {
	lister, ok := c.txns.store.(TransactionLister)
	if !ok {
		c.logger.Debug("transaction store cannot be listed, skipping lost cleanup")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	stats, err := c.ProcessLost(ctx, lister)
	if err != nil {
		c.logger.Warn("lost transaction scan failed", zap.Error(err))
		return
	}

	c.logger.Info("lost transaction scan finished",
		zap.Int("entries", stats.NumEntries),
		zap.Int("expired", stats.NumEntriesExpired),
		zap.Int("invalid", stats.NumEntriesInvalid))
}

// ProcessLost scans lister and queues every transaction it holds.
// Internal: This should never be used and is not supported.
func (c *stdCleaner) ProcessLost(ctx context.Context, lister TransactionLister) (ProcessLostStats, error) {
	var stats ProcessLostStats
	now := time.Now()

	err := lister.ForEach(ctx, func(id string, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.NumEntries++
		txn, err := deserializeTransaction(data)
		if err != nil {
			stats.NumEntriesInvalid++
			c.logger.Warn("skipping unreadable transaction",
				zap.String("txn", id),
				zap.Error(err))
			return nil
		}

		readyTime := txn.createdAt.Add(c.txns.config.ExpiryTime)
		if !now.Before(readyTime) {
			stats.NumEntriesExpired++
		}

		c.AddRequest(&CleanupRequest{
			TransactionID: id,
			readyTime:     readyTime,
		})
		return nil
	})

	return stats, err
}
