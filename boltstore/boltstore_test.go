package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	transactions "github.com/geodata/featuretxn"
)

func newTestStore(t *testing.T) (*Store, string) {
	path := filepath.Join(t.TempDir(), "txn.db")
	store, err := Open(Config{Path: path, NoSync: true})
	require.NoError(t, err, "open failed")
	return store, path
}

func TestStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	defer store.Close()

	_, _, err := store.Get(ctx, "a")
	assert.True(t, errors.Is(err, transactions.ErrTransactionNotFound))

	rev1, err := store.Put(ctx, "a", []byte(`{"v":1}`), 0)
	require.NoError(t, err)
	assert.NotZero(t, rev1)

	_, err = store.Put(ctx, "a", []byte(`{"v":0}`), 0)
	assert.True(t, errors.Is(err, transactions.ErrRevisionMismatch))

	rev2, err := store.Put(ctx, "a", []byte(`{"v":2}`), rev1)
	require.NoError(t, err)
	assert.True(t, rev2 > rev1)

	_, err = store.Put(ctx, "a", []byte(`{"v":3}`), rev1)
	assert.True(t, errors.Is(err, transactions.ErrRevisionMismatch))

	data, rev, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))
	assert.Equal(t, rev2, rev)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.True(t, errors.Is(store.Delete(ctx, "a"), transactions.ErrTransactionNotFound))

	_, err = store.Put(ctx, "a", []byte(`{"v":4}`), rev2)
	assert.True(t, errors.Is(err, transactions.ErrRevisionMismatch))

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	rev, err := store.Put(ctx, "a", []byte("doc"), 0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer store.Close()

	data, reopenedRev, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "doc", string(data))
	assert.Equal(t, rev, reopenedRev)

	nextRev, err := store.Put(ctx, "a", []byte("doc2"), rev)
	require.NoError(t, err)
	assert.True(t, nextRev > rev, "revisions keep increasing across reopen")
}

func TestStoreForEach(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	defer store.Close()

	for _, id := range []string{"b", "a"} {
		_, err := store.Put(ctx, id, []byte("doc-"+id), 0)
		require.NoError(t, err)
	}

	var ids []string
	require.NoError(t, store.ForEach(ctx, func(id string, data []byte) error {
		ids = append(ids, id)
		assert.Equal(t, "doc-"+id, string(data))
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, ids, "keys are visited in byte order")
}

func TestStoreForEachSkipsCorruptValue(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	defer store.Close()

	for _, id := range []string{"a", "c"} {
		_, err := store.Put(ctx, id, []byte("doc-"+id), 0)
		require.NoError(t, err)
	}
	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transactionsBucketName).Put([]byte("b"), []byte{1, 2})
	}))

	visited := map[string][]byte{}
	require.NoError(t, store.ForEach(ctx, func(id string, data []byte) error {
		visited[id] = data
		return nil
	}))
	require.Len(t, visited, 3, "iteration should continue past a corrupt value")
	assert.Nil(t, visited["b"])
	assert.Equal(t, "doc-c", string(visited["c"]))
}

type nopRecordStore struct{}

func (nopRecordStore) Versioning(ctx context.Context) (transactions.Epoch, bool, error) {
	return 0, false, nil
}

func (nopRecordStore) Create(ctx context.Context, record transactions.Record) (transactions.RecordID, transactions.Version, error) {
	return 1, 1, nil
}

func (nopRecordStore) CurrentVersion(ctx context.Context, id transactions.RecordID) (transactions.Version, error) {
	return 1, nil
}

func (nopRecordStore) Update(ctx context.Context, id transactions.RecordID, record transactions.Record) (transactions.Version, error) {
	return 2, nil
}

func (nopRecordStore) Delete(ctx context.Context, id transactions.RecordID) error {
	return nil
}

func TestStoreBacksEngine(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	config := &transactions.Config{
		Store: store,
		RecordStoreProvider: func(collectionID string) (transactions.RecordStore, error) {
			return nopRecordStore{}, nil
		},
	}
	txns, err := transactions.Init(config)
	require.NoError(t, err)

	txnID, err := txns.CreateTransaction(ctx, "layer", nil)
	require.NoError(t, err)

	subs, err := transactions.DecodeSubmission([]byte(`[[1, {"action":"feature.create"}]]`))
	require.NoError(t, err)
	require.NoError(t, txns.SubmitOperations(ctx, txnID, subs))

	res, err := txns.Commit(ctx, txnID)
	require.NoError(t, err)
	require.NoError(t, txns.Close())

	// The memoized result survives a restart.
	store, err = Open(Config{Path: path})
	require.NoError(t, err)
	config.Store = store
	txns, err = transactions.Init(config)
	require.NoError(t, err)
	defer txns.Close()

	outcomes, err := txns.ReadResults(ctx, txnID)
	require.NoError(t, err)
	assert.Equal(t, res.Outcomes, outcomes)
}

func TestLostTransactionsExpireAfterRestart(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	config := &transactions.Config{
		Store: store,
		RecordStoreProvider: func(collectionID string) (transactions.RecordStore, error) {
			return nopRecordStore{}, nil
		},
	}
	txns, err := transactions.Init(config)
	require.NoError(t, err)

	txnID, err := txns.CreateTransaction(ctx, "layer", nil)
	require.NoError(t, err)
	require.NoError(t, txns.Close())

	store, err = Open(Config{Path: path})
	require.NoError(t, err)
	// Visited before any uuid key, the scan has to continue past it.
	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transactionsBucketName).Put([]byte("0"), []byte{1})
	}))
	txns, err = transactions.Init(&transactions.Config{
		Store:               store,
		RecordStoreProvider: config.RecordStoreProvider,
		ExpiryTime:          time.Millisecond,
		CleanupLostAttempts: true,
	})
	require.NoError(t, err)
	defer txns.Close()

	require.Eventually(t, func() bool {
		_, err := txns.GetTransaction(ctx, txnID)
		return errors.Is(err, transactions.ErrTransactionNotFound)
	}, 5*time.Second, 50*time.Millisecond)
}
