package transactions

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type memStoreEntry struct {
	data     []byte
	revision Revision
}

// MemoryStore is a TransactionStore which keeps documents in process memory.
// It is the default store when none is configured.
type MemoryStore struct {
	lock    sync.Mutex
	entries map[string]memStoreEntry
	nextRev Revision
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memStoreEntry),
	}
}

// Get implements TransactionStore.
func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, Revision, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, 0, errors.Wrapf(ErrTransactionNotFound, "transaction %s", id)
	}

	data := make([]byte, len(entry.data))
	copy(data, entry.data)
	return data, entry.revision, nil
}

// Put implements TransactionStore.
func (s *MemoryStore) Put(ctx context.Context, id string, data []byte, expected Revision) (Revision, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.entries[id]
	if !ok && expected != 0 {
		return 0, errors.Wrapf(ErrRevisionMismatch, "transaction %s no longer exists", id)
	}
	if ok && entry.revision != expected {
		return 0, errors.Wrapf(ErrRevisionMismatch, "transaction %s is at revision %d, expected %d",
			id, entry.revision, expected)
	}

	s.nextRev++
	stored := make([]byte, len(data))
	copy(stored, data)
	s.entries[id] = memStoreEntry{
		data:     stored,
		revision: s.nextRev,
	}

	return s.nextRev, nil
}

// Delete implements TransactionStore.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.entries[id]; !ok {
		return errors.Wrapf(ErrTransactionNotFound, "transaction %s", id)
	}

	delete(s.entries, id)
	return nil
}

// ForEach implements TransactionLister. fn sees a snapshot taken when the
// iteration starts.
func (s *MemoryStore) ForEach(ctx context.Context, fn func(id string, data []byte) error) error {
	s.lock.Lock()
	snapshot := make(map[string][]byte, len(s.entries))
	for id, entry := range s.entries {
		snapshot[id] = entry.data
	}
	s.lock.Unlock()

	for id, data := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, data); err != nil {
			return err
		}
	}

	return nil
}

// Close implements TransactionStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.entries)
}
