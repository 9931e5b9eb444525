package transactions

import (
	"encoding/json"
)

// CommitView is the wire representation of a commit result. Only failing
// operations are listed.
type CommitView struct {
	Status TransactionStatus
	Errors []Outcome
}

// NewCommitView builds the commit view of a result.
func NewCommitView(result *CommitResult) CommitView {
	return CommitView{
		Status: result.Status,
		Errors: result.Failures(),
	}
}

type jsonCommitView struct {
	Status string            `json:"status"`
	Errors []json.RawMessage `json:"errors,omitempty"`
}

// MarshalJSON encodes the view as `{"status": ..., "errors": [[opId, error], ...]}`.
func (v CommitView) MarshalJSON() ([]byte, error) {
	res := jsonCommitView{
		Status: v.Status.String(),
	}

	for _, outcome := range v.Errors {
		pair, err := json.Marshal([]interface{}{outcome.OpID, outcome.Err})
		if err != nil {
			return nil, err
		}
		res.Errors = append(res.Errors, pair)
	}

	return json.Marshal(res)
}

type jsonResultItem struct {
	Action     OperationAction `json:"action"`
	FID        *RecordID       `json:"fid,omitempty"`
	VID        *Version        `json:"vid,omitempty"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// ResultView is the wire representation of the outcome list returned by
// ReadResults.
type ResultView []Outcome

// MarshalJSON encodes the view as `[[opId, item], ...]`.
func (v ResultView) MarshalJSON() ([]byte, error) {
	pairs := make([][2]interface{}, 0, len(v))

	for _, outcome := range v {
		item := jsonResultItem{
			Action: outcome.Action,
		}

		if outcome.Succeeded() {
			fid := outcome.RecordID
			item.FID = &fid
			item.VID = outcome.Version
		} else {
			item.Error = string(outcome.Err.Kind)
			item.StatusCode = outcome.Err.StatusCode
			item.Message = outcome.Err.Message
		}

		pairs = append(pairs, [2]interface{}{outcome.OpID, item})
	}

	return json.Marshal(pairs)
}
