package transactions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	record  Record
	version Version
}

// testRecordStore is an in-memory RecordStore which counts mutating calls.
type testRecordStore struct {
	lock      sync.Mutex
	versioned bool
	epoch     Epoch
	records   map[RecordID]*testRecord
	nextID    RecordID

	creates int
	updates int
	deletes int

	// failNext makes the next mutating calls fail with an infrastructure error.
	failNext int
}

func newTestRecordStore(versioned bool, count int) *testRecordStore {
	s := &testRecordStore{
		versioned: versioned,
		epoch:     1,
		records:   make(map[RecordID]*testRecord),
	}
	for i := 0; i < count; i++ {
		geom := "POINT Z (0 0 0)"
		_, _, _ = s.Create(context.Background(), Record{
			Geom:   &geom,
			Fields: map[string]interface{}{"foo": "Original"},
		})
	}
	s.creates = 0
	return s
}

func (s *testRecordStore) infraFailure() error {
	if s.failNext > 0 {
		s.failNext--
		return errors.New("record store unreachable")
	}
	return nil
}

func (s *testRecordStore) Versioning(ctx context.Context) (Epoch, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.versioned {
		return 0, false, nil
	}
	return s.epoch, true, nil
}

func (s *testRecordStore) Create(ctx context.Context, record Record) (RecordID, Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.infraFailure(); err != nil {
		return 0, 0, err
	}

	s.creates++
	s.nextID++
	s.records[s.nextID] = &testRecord{record: Record{}.Merge(record), version: 1}
	return s.nextID, 1, nil
}

func (s *testRecordStore) CurrentVersion(ctx context.Context, id RecordID) (Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, errors.Wrapf(ErrRecordNotFound, "feature %d", id)
	}
	return rec.version, nil
}

func (s *testRecordStore) Update(ctx context.Context, id RecordID, record Record) (Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.infraFailure(); err != nil {
		return 0, err
	}

	rec, ok := s.records[id]
	if !ok {
		return 0, errors.Wrapf(ErrRecordNotFound, "feature %d", id)
	}

	s.updates++
	rec.record = rec.record.Merge(record)
	rec.version++
	return rec.version, nil
}

func (s *testRecordStore) Delete(ctx context.Context, id RecordID) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.infraFailure(); err != nil {
		return err
	}

	if _, ok := s.records[id]; !ok {
		return errors.Wrapf(ErrRecordNotFound, "feature %d", id)
	}

	s.deletes++
	delete(s.records, id)
	return nil
}

func (s *testRecordStore) mutations() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.creates + s.updates + s.deletes
}

func (s *testRecordStore) get(id RecordID) (*testRecord, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[id]
	return rec, ok
}

func (s *testRecordStore) len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.records)
}

type testHooks struct {
	DefaultHooks
	beforeOperationCommit func(txnID string, opID OpID) error
	beforeResultPersisted func(txnID string) error
}

func (h *testHooks) BeforeOperationCommit(txnID string, opID OpID) error {
	if h.beforeOperationCommit != nil {
		return h.beforeOperationCommit(txnID, opID)
	}
	return nil
}

func (h *testHooks) BeforeResultPersisted(txnID string) error {
	if h.beforeResultPersisted != nil {
		return h.beforeResultPersisted(txnID)
	}
	return nil
}

func testInit(t *testing.T, store *testRecordStore, hooks TransactionHooks) *Transactions {
	config := &Config{
		RecordStoreProvider: func(collectionID string) (RecordStore, error) {
			if collectionID != "layer" {
				return nil, errors.Wrapf(ErrCollectionNotFound, "collection %s", collectionID)
			}
			return store, nil
		},
	}
	config.Internal.Hooks = hooks

	txns, err := Init(config)
	require.NoError(t, err, "init failed")
	t.Cleanup(func() {
		_ = txns.Close()
	})

	return txns
}

func testEpoch(e Epoch) *Epoch {
	return &e
}

func testVersion(v Version) *Version {
	return &v
}

func testGeom(g string) *string {
	return &g
}

func testSubmit(t *testing.T, ops ...interface{}) []SubmittedOperation {
	require.Equal(t, 0, len(ops)%2, "ops must be opId, body pairs")

	var subs []SubmittedOperation
	for i := 0; i < len(ops); i += 2 {
		opID := OpID(ops[i].(int))

		var body json.RawMessage
		switch b := ops[i+1].(type) {
		case nil:
			body = nil
		case string:
			body = json.RawMessage(b)
		case Operation:
			sub, err := NewSubmittedOperation(opID, b)
			require.NoError(t, err)
			body = sub.Body
		default:
			t.Fatalf("unexpected body type %T", b)
		}

		subs = append(subs, SubmittedOperation{OpID: opID, Body: body})
	}

	return subs
}
