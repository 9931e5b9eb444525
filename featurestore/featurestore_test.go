package featurestore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transactions "github.com/geodata/featuretxn"
)

func strPtr(s string) *string {
	return &s
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New(nil)

	c, err := store.CreateCollection("1", true)
	require.NoError(t, err)

	_, err = store.CreateCollection("1", false)
	assert.True(t, errors.Is(err, ErrCollectionExists))

	_, err = store.Collection("2")
	assert.True(t, errors.Is(err, transactions.ErrCollectionNotFound))

	epoch, versioned, err := c.Versioning(ctx)
	require.NoError(t, err)
	assert.True(t, versioned)
	assert.Equal(t, transactions.Epoch(1), epoch)

	id, version, err := c.Create(ctx, transactions.Record{
		Geom:   strPtr("POINT Z (0 0 1)"),
		Fields: map[string]interface{}{"foo": "Original", "bar": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, transactions.RecordID(1), id)
	assert.Equal(t, transactions.Version(1), version)

	version, err = c.Update(ctx, id, transactions.Record{Fields: map[string]interface{}{"foo": "Updated"}})
	require.NoError(t, err)
	assert.Equal(t, transactions.Version(2), version)

	current, err := c.CurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, transactions.Version(2), current)

	feature, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "POINT Z (0 0 1)", *feature.Geom)
	assert.Equal(t, map[string]interface{}{"foo": "Updated", "bar": "x"}, feature.Fields)
	require.NotNil(t, feature.Version)
	assert.Equal(t, transactions.Version(2), *feature.Version)

	require.NoError(t, c.Delete(ctx, id))
	assert.True(t, errors.Is(c.Delete(ctx, id), transactions.ErrRecordNotFound))
	_, err = c.Update(ctx, id, transactions.Record{})
	assert.True(t, errors.Is(err, transactions.ErrRecordNotFound))
	_, err = c.CurrentVersion(ctx, id)
	assert.True(t, errors.Is(err, transactions.ErrRecordNotFound))

	// Ids are never reused.
	id, _, err = c.Create(ctx, transactions.Record{})
	require.NoError(t, err)
	assert.Equal(t, transactions.RecordID(2), id)

	assert.Equal(t, transactions.Epoch(2), c.ResetEpoch())
}

func TestCollectionListOrdered(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	c, err := store.CreateCollection("layer", false)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, _, err := c.Create(ctx, transactions.Record{})
		require.NoError(t, err)
	}
	for i := transactions.RecordID(2); i <= 100; i += 2 {
		require.NoError(t, c.Delete(ctx, i))
	}

	features := c.List(ctx)
	require.Len(t, features, 50)
	for i, f := range features {
		assert.Equal(t, transactions.RecordID(2*i+1), f.ID)
		assert.Nil(t, f.Version, "unversioned collections have no versions")
	}
	assert.Equal(t, 50, c.Len())

	_, versioned, err := c.Versioning(ctx)
	require.NoError(t, err)
	assert.False(t, versioned)
	assert.Equal(t, transactions.Epoch(0), c.ResetEpoch())

	listed, err := store.Features(ctx, "layer")
	require.NoError(t, err)
	assert.Equal(t, features, listed)

	f, err := store.Feature(ctx, "layer", 3)
	require.NoError(t, err)
	assert.Equal(t, transactions.RecordID(3), f.ID)

	_, err = store.Feature(ctx, "layer", 4)
	assert.True(t, errors.Is(err, transactions.ErrRecordNotFound))
	_, err = store.Features(ctx, "missing")
	assert.True(t, errors.Is(err, transactions.ErrCollectionNotFound))
}

func TestValidateRecord(t *testing.T) {
	ctx := context.Background()
	c, err := New(nil).CreateCollection("layer", false)
	require.NoError(t, err)

	_, _, err = c.Create(ctx, transactions.Record{Geom: strPtr("")})
	assert.True(t, errors.Is(err, transactions.ErrRecordInvalid))

	_, _, err = c.Create(ctx, transactions.Record{Fields: map[string]interface{}{
		"nested": map[string]interface{}{"a": 1},
	}})
	assert.True(t, errors.Is(err, transactions.ErrRecordInvalid))
	assert.Equal(t, 0, c.Len())
}

func TestProviderWithEngine(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	c, err := store.CreateCollection("layer", false)
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		_, _, err := c.Create(ctx, transactions.Record{
			Geom:   strPtr("POINT Z (0 0 0)"),
			Fields: map[string]interface{}{"foo": "Original"},
		})
		require.NoError(t, err)
	}

	txns, err := transactions.Init(&transactions.Config{
		RecordStoreProvider: store.Provider(),
	})
	require.NoError(t, err)
	defer txns.Close()

	txnID, err := txns.CreateTransaction(ctx, "layer", nil)
	require.NoError(t, err)

	subs, err := transactions.DecodeSubmission([]byte(`[
		[1, {"action":"feature.create","geom":"POINT Z (0 0 3)","fields":{"foo":"Inserted"}}],
		[2, {"action":"feature.update","fid":1,"fields":{"foo":"Updated"}}],
		[3, {"action":"feature.delete","fid":2}],
		[4, {"action":"feature.update","fid":1,"fields":{"foo":{"x":1}}}]
	]`))
	require.NoError(t, err)
	require.NoError(t, txns.SubmitOperations(ctx, txnID, subs))

	res, err := txns.Commit(ctx, txnID)
	require.NoError(t, err)
	assert.Equal(t, transactions.TransactionStatusErrors, res.Status)
	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, transactions.ErrorKindInvalid, failures[0].Err.Kind)

	features := c.List(ctx)
	require.Len(t, features, 2)
	assert.Equal(t, transactions.RecordID(1), features[0].ID)
	assert.Equal(t, "Updated", features[0].Fields["foo"])
	assert.Equal(t, transactions.RecordID(3), features[1].ID)
}
