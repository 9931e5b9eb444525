package transactions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitViewMarshals(t *testing.T) {
	view := NewCommitView(&CommitResult{
		Status:   TransactionStatusCommitted,
		Outcomes: []Outcome{{OpID: 1, Action: ActionCreate, RecordID: 3}},
	})

	bytes, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"committed"}`, string(bytes))

	view = NewCommitView(&CommitResult{
		Status: TransactionStatusErrors,
		Outcomes: []Outcome{
			{OpID: 1, Action: ActionUpdate, RecordID: 1},
			{OpID: 2, Action: ActionUpdate, RecordID: 4, Err: &OperationError{
				Kind: ErrorKindNotFound, StatusCode: 404, Message: "feature 4 not found"}},
		},
	})

	bytes, err = json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"errors","errors":[
		[2, {"error":"feature.not_found","status_code":404,"message":"feature 4 not found"}]
	]}`, string(bytes))
}

func TestResultViewMarshals(t *testing.T) {
	view := ResultView{
		{OpID: 1, Action: ActionCreate, RecordID: 3, Version: testVersion(1)},
		{OpID: 2, Action: ActionUpdate, RecordID: 1},
		{OpID: 3, Action: ActionDelete, RecordID: 9, Err: &OperationError{
			Kind: ErrorKindConflict, StatusCode: 409, Message: "stale"}},
	}

	bytes, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		[1, {"action":"feature.create","fid":3,"vid":1}],
		[2, {"action":"feature.update","fid":1}],
		[3, {"action":"feature.delete","error":"feature.conflict","status_code":409,"message":"stale"}]
	]`, string(bytes))

	bytes, err = json.Marshal(ResultView{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(bytes))
}
