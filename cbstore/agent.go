package cbstore

import (
	"context"
	"time"

	"github.com/couchbase/gocbcore/v9"
)

// KVAgent is the subset of *gocbcore.Agent used by the store.
type KVAgent interface {
	Get(opts gocbcore.GetOptions, cb gocbcore.GetCallback) (gocbcore.PendingOp, error)
	Add(opts gocbcore.AddOptions, cb gocbcore.StoreCallback) (gocbcore.PendingOp, error)
	Replace(opts gocbcore.ReplaceOptions, cb gocbcore.StoreCallback) (gocbcore.PendingOp, error)
	Delete(opts gocbcore.DeleteOptions, cb gocbcore.DeleteCallback) (gocbcore.PendingOp, error)
	Increment(opts gocbcore.CounterOptions, cb gocbcore.CounterCallback) (gocbcore.PendingOp, error)
}

var _ KVAgent = &gocbcore.Agent{}

func opDeadline(ctx context.Context, opTimeout time.Duration) time.Time {
	deadline, ok := ctx.Deadline()
	if opTimeout > 0 {
		if fallback := time.Now().Add(opTimeout); !ok || fallback.Before(deadline) {
			return fallback
		}
	}
	return deadline
}

func (c *Collection) blkGet(ctx context.Context, key []byte) (resOut *gocbcore.GetResult, errOut error) {
	waitCh := make(chan struct{}, 1)
	_, err := c.agent.Get(gocbcore.GetOptions{
		Key:            key,
		ScopeName:      c.scopeName,
		CollectionName: c.collectionName,
		Deadline:       opDeadline(ctx, c.opTimeout),
	}, func(res *gocbcore.GetResult, err error) {
		resOut = res
		errOut = err
		waitCh <- struct{}{}
	})
	if err != nil {
		return nil, err
	}
	<-waitCh
	return
}

func (c *Collection) blkAdd(ctx context.Context, key, value []byte) (resOut *gocbcore.StoreResult, errOut error) {
	waitCh := make(chan struct{}, 1)
	_, err := c.agent.Add(gocbcore.AddOptions{
		Key:             key,
		Value:           value,
		ScopeName:       c.scopeName,
		CollectionName:  c.collectionName,
		DurabilityLevel: c.durabilityLevel,
		Deadline:        opDeadline(ctx, c.opTimeout),
	}, func(res *gocbcore.StoreResult, err error) {
		resOut = res
		errOut = err
		waitCh <- struct{}{}
	})
	if err != nil {
		return nil, err
	}
	<-waitCh
	return
}

func (c *Collection) blkReplace(ctx context.Context, key, value []byte, cas gocbcore.Cas) (resOut *gocbcore.StoreResult, errOut error) {
	waitCh := make(chan struct{}, 1)
	_, err := c.agent.Replace(gocbcore.ReplaceOptions{
		Key:             key,
		Value:           value,
		Cas:             cas,
		ScopeName:       c.scopeName,
		CollectionName:  c.collectionName,
		DurabilityLevel: c.durabilityLevel,
		Deadline:        opDeadline(ctx, c.opTimeout),
	}, func(res *gocbcore.StoreResult, err error) {
		resOut = res
		errOut = err
		waitCh <- struct{}{}
	})
	if err != nil {
		return nil, err
	}
	<-waitCh
	return
}

func (c *Collection) blkDelete(ctx context.Context, key []byte, cas gocbcore.Cas) (errOut error) {
	waitCh := make(chan struct{}, 1)
	_, err := c.agent.Delete(gocbcore.DeleteOptions{
		Key:             key,
		Cas:             cas,
		ScopeName:       c.scopeName,
		CollectionName:  c.collectionName,
		DurabilityLevel: c.durabilityLevel,
		Deadline:        opDeadline(ctx, c.opTimeout),
	}, func(res *gocbcore.DeleteResult, err error) {
		errOut = err
		waitCh <- struct{}{}
	})
	if err != nil {
		return err
	}
	<-waitCh
	return
}

// blkIncrement adds delta to the counter at key, creating it with the value
// delta when missing.
func (c *Collection) blkIncrement(ctx context.Context, key []byte, delta uint64) (valueOut uint64, errOut error) {
	waitCh := make(chan struct{}, 1)
	_, err := c.agent.Increment(gocbcore.CounterOptions{
		Key:             key,
		Delta:           delta,
		Initial:         delta,
		ScopeName:       c.scopeName,
		CollectionName:  c.collectionName,
		DurabilityLevel: c.durabilityLevel,
		Deadline:        opDeadline(ctx, c.opTimeout),
	}, func(res *gocbcore.CounterResult, err error) {
		if res != nil {
			valueOut = res.Value
		}
		errOut = err
		waitCh <- struct{}{}
	})
	if err != nil {
		return 0, err
	}
	<-waitCh
	return
}
