package transactions

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOperation(t *testing.T) {
	op, err := DecodeOperation([]byte(`{"action":"feature.create","geom":"AQEAAA==","fields":{"foo":"Inserted"}}`))
	require.NoError(t, err)
	create, ok := op.(CreateOperation)
	require.True(t, ok, "expected a create, got %T", op)
	assert.Equal(t, "AQEAAA==", *create.Record.Geom)
	assert.Equal(t, "Inserted", create.Record.Fields["foo"])

	op, err = DecodeOperation([]byte(`{"action":"feature.update","fid":1,"vid":2,"fields":{"foo":"Updated"}}`))
	require.NoError(t, err)
	update, ok := op.(UpdateOperation)
	require.True(t, ok, "expected an update, got %T", op)
	assert.Equal(t, RecordID(1), update.TargetID)
	require.NotNil(t, update.ExpectedVersion)
	assert.Equal(t, Version(2), *update.ExpectedVersion)
	assert.Nil(t, update.Record.Geom)

	op, err = DecodeOperation([]byte(`{"action":"feature.delete","fid":2}`))
	require.NoError(t, err)
	assert.Equal(t, DeleteOperation{TargetID: 2}, op)

	for _, body := range []string{"", "null", "  null "} {
		op, err = DecodeOperation([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, WithdrawnOperation{}, op, "body %q", body)
	}
}

func TestDecodeOperationInvalid(t *testing.T) {
	bodies := []string{
		`{"action":"feature.create","fid":1}`,
		`{"action":"feature.create","vid":1}`,
		`{"action":"feature.update"}`,
		`{"action":"feature.update","fid":0}`,
		`{"action":"feature.update","fid":-3}`,
		`{"action":"feature.update","fid":1,"vid":0}`,
		`{"action":"feature.delete"}`,
		`{"action":"feature.delete","fid":1,"fields":{}}`,
		`{"action":"feature.explode"}`,
		`{"fid":1}`,
		`{"action":"feature.create","extra":true}`,
		`{"action":"feature.create"} {}`,
		`{"action":`,
		`[1]`,
	}

	for _, body := range bodies {
		_, err := DecodeOperation([]byte(body))
		assert.True(t, errors.Is(err, ErrInvalidOperation), "body %s should be invalid, got %v", body, err)
	}
}

func TestEncodeOperationCanonical(t *testing.T) {
	a, err := DecodeOperation([]byte(`{"fields":{"b":1,"a":2},"action":"feature.update","fid":3}`))
	require.NoError(t, err)
	b, err := DecodeOperation([]byte(`{"action":"feature.update","fid":3,"fields":{"a":2,"b":1}}`))
	require.NoError(t, err)

	aBytes, err := EncodeOperation(a)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"feature.update","fid":3,"fields":{"a":2,"b":1}}`, string(aBytes))
	assert.True(t, operationsEqual(a, b))

	c, err := DecodeOperation([]byte(`{"action":"feature.update","fid":3,"fields":{"a":2,"b":"1"}}`))
	require.NoError(t, err)
	assert.False(t, operationsEqual(a, c))

	nullBytes, err := EncodeOperation(WithdrawnOperation{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(nullBytes))
}

func TestDecodeSubmission(t *testing.T) {
	subs, err := DecodeSubmission([]byte(`[[1, {"action":"feature.delete","fid":2}], [2, null]]`))
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, OpID(1), subs[0].OpID)
	assert.JSONEq(t, `{"action":"feature.delete","fid":2}`, string(subs[0].Body))
	assert.Equal(t, OpID(2), subs[1].OpID)
	assert.Equal(t, json.RawMessage("null"), subs[1].Body)

	for _, data := range []string{
		`{}`,
		`[[1]]`,
		`[[0, null]]`,
		`[["a", null]]`,
		`[[1.5, null]]`,
		`[[1, null, 2]]`,
	} {
		_, err := DecodeSubmission([]byte(data))
		assert.True(t, errors.Is(err, ErrInvalidOperation), "submission %s should be invalid", data)
	}
}
