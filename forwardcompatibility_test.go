package transactions

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFormatVersion(t *testing.T) {
	assert.NoError(t, checkFormatVersion(""))
	assert.NoError(t, checkFormatVersion(currentFormatVersion))
	assert.NoError(t, checkFormatVersion("1.7"))
	assert.NoError(t, checkFormatVersion("0.9"))

	err := checkFormatVersion("2.0")
	assert.True(t, errors.Is(err, ErrForwardCompatibilityFailure))

	for _, bad := range []string{"1", "1.0.0", "x.0", "1.y"} {
		err := checkFormatVersion(bad)
		assert.Error(t, err, bad)
		assert.False(t, errors.Is(err, ErrForwardCompatibilityFailure), bad)
	}
}

func TestDeserializeRejectsNewerFormat(t *testing.T) {
	txn := newTransaction("abc", "layer", nil, time.Now())
	data, err := serializeTransaction(txn)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fmt":"`+currentFormatVersion+`"`)

	_, err = deserializeTransaction(data)
	require.NoError(t, err)

	_, err = deserializeTransaction([]byte(`{"fmt":"9.0","id":"abc","col":"layer","status":"open","ops":[]}`))
	assert.True(t, errors.Is(err, ErrForwardCompatibilityFailure))

	// Documents written before versioning are still readable.
	old, err := deserializeTransaction([]byte(`{"id":"abc","col":"layer","status":"open","ops":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", old.ID())
}
