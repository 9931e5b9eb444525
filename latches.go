package transactions

import (
	"context"
	"sync"
)

// latches serializes work on a single transaction id. Each latched id maps to
// a WaitGroup which waiters block on until the holder releases it. Entries
// only exist while held, so disposed ids leave nothing behind.
type latches struct {
	latchMap   map[string]*sync.WaitGroup
	latchGuard sync.Mutex
}

func newLatches() *latches {
	return &latches{
		latchMap: make(map[string]*sync.WaitGroup),
	}
}

// tryAcquire latches id and returns nil, or returns the WaitGroup of the
// current holder.
func (l *latches) tryAcquire(id string) *sync.WaitGroup {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	if latchWg, ok := l.latchMap[id]; ok {
		return latchWg
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	l.latchMap[id] = wg
	return nil
}

// acquire blocks until id is latched by the caller or ctx is done.
func (l *latches) acquire(ctx context.Context, id string) error {
	for {
		wg := l.tryAcquire(id)
		if wg == nil {
			return nil
		}

		waitCh := make(chan struct{})
		go func() {
			wg.Wait()
			close(waitCh)
		}()

		select {
		case <-waitCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *latches) release(id string) {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	wg, ok := l.latchMap[id]
	if !ok {
		return
	}
	delete(l.latchMap, id)
	wg.Done()
}

func (l *latches) len() int {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	return len(l.latchMap)
}
