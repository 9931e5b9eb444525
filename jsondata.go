package transactions

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type jsonOperation struct {
	Action OperationAction        `json:"action"`
	FID    *RecordID              `json:"fid,omitempty"`
	VID    *Version               `json:"vid,omitempty"`
	Geom   *string                `json:"geom,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

type jsonOperationError struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

type jsonOutcome struct {
	OpID     OpID            `json:"op"`
	Action   OperationAction `json:"action"`
	RecordID RecordID        `json:"fid,omitempty"`
	Version  *Version        `json:"vid,omitempty"`
	Err      *OperationError `json:"err,omitempty"`
}

type jsonStagedOperation struct {
	OpID    OpID            `json:"op"`
	Body    json.RawMessage `json:"body"`
	Applied *jsonOutcome    `json:"applied,omitempty"`
	Failed  bool            `json:"failed,omitempty"`
}

type jsonCommitResult struct {
	Status   string        `json:"status"`
	Outcomes []jsonOutcome `json:"outcomes"`
}

type jsonCommitClaim struct {
	Owner     string `json:"owner"`
	ExpiresMs int64  `json:"expires_ms"`
}

type jsonTransaction struct {
	Format     string                `json:"fmt,omitempty"`
	ID         string                `json:"id"`
	Collection string                `json:"col"`
	Epoch      *Epoch                `json:"epoch,omitempty"`
	Status     string                `json:"status"`
	CreatedMs  int64                 `json:"created_ms"`
	Operations []jsonStagedOperation `json:"ops"`
	Result     *jsonCommitResult     `json:"result,omitempty"`
	Claim      *jsonCommitClaim      `json:"claim,omitempty"`
}

func outcomeToJSON(outcome Outcome) jsonOutcome {
	return jsonOutcome{
		OpID:     outcome.OpID,
		Action:   outcome.Action,
		RecordID: outcome.RecordID,
		Version:  outcome.Version,
		Err:      outcome.Err,
	}
}

func outcomeFromJSON(data jsonOutcome) Outcome {
	return Outcome{
		OpID:     data.OpID,
		Action:   data.Action,
		RecordID: data.RecordID,
		Version:  data.Version,
		Err:      data.Err,
	}
}

func serializeTransaction(txn *Transaction) ([]byte, error) {
	var res jsonTransaction

	res.Format = currentFormatVersion
	res.ID = txn.id
	res.Collection = txn.collectionID
	res.Epoch = txn.epoch
	res.Status = txn.status.String()
	res.CreatedMs = txn.createdAt.UnixNano() / int64(time.Millisecond)
	res.Operations = make([]jsonStagedOperation, 0, len(txn.operations))

	for _, staged := range txn.operations {
		body, err := EncodeOperation(staged.Operation)
		if err != nil {
			return nil, err
		}

		opData := jsonStagedOperation{
			OpID:   staged.OpID,
			Body:   body,
			Failed: staged.Failed,
		}
		if staged.Applied != nil {
			applied := outcomeToJSON(*staged.Applied)
			opData.Applied = &applied
		}

		res.Operations = append(res.Operations, opData)
	}

	if txn.result != nil {
		res.Result = &jsonCommitResult{
			Status:   txn.result.Status.String(),
			Outcomes: make([]jsonOutcome, 0, len(txn.result.Outcomes)),
		}
		for _, outcome := range txn.result.Outcomes {
			res.Result.Outcomes = append(res.Result.Outcomes, outcomeToJSON(outcome))
		}
	}

	if txn.claim != nil {
		res.Claim = &jsonCommitClaim{
			Owner:     txn.claim.owner,
			ExpiresMs: txn.claim.expiresAt.UnixNano() / int64(time.Millisecond),
		}
	}

	return json.Marshal(res)
}

func deserializeTransaction(txnBytes []byte) (*Transaction, error) {
	var txnData jsonTransaction
	err := json.Unmarshal(txnBytes, &txnData)
	if err != nil {
		return nil, err
	}

	if err := checkFormatVersion(txnData.Format); err != nil {
		return nil, err
	}

	if txnData.ID == "" {
		return nil, errors.New("invalid txn data - no transaction id")
	}
	if txnData.Collection == "" {
		return nil, errors.New("invalid txn data - no collection")
	}

	status, err := transactionStatusFromString(txnData.Status)
	if err != nil {
		return nil, err
	}

	operations := make(stagedOperations, len(txnData.Operations))
	for opIdx, opData := range txnData.Operations {
		if opData.OpID <= 0 {
			return nil, errors.New("invalid staged operation - no op id")
		}

		op, err := DecodeOperation(opData.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid staged operation %d", opData.OpID)
		}

		staged := &StagedOperation{
			OpID:      opData.OpID,
			Operation: op,
			Failed:    opData.Failed,
		}
		if opData.Applied != nil {
			applied := outcomeFromJSON(*opData.Applied)
			staged.Applied = &applied
		}

		operations[opIdx] = staged
	}

	var result *CommitResult
	if txnData.Result != nil {
		resultStatus, err := transactionStatusFromString(txnData.Result.Status)
		if err != nil {
			return nil, err
		}

		result = &CommitResult{
			Status:   resultStatus,
			Outcomes: make([]Outcome, 0, len(txnData.Result.Outcomes)),
		}
		for _, outcomeData := range txnData.Result.Outcomes {
			result.Outcomes = append(result.Outcomes, outcomeFromJSON(outcomeData))
		}
	}

	if (status == TransactionStatusOpen) != (result == nil) {
		return nil, errors.Wrap(ErrIllegalState, "invalid txn data - status does not match result")
	}

	var claim *commitClaim
	if txnData.Claim != nil {
		if result != nil {
			return nil, errors.Wrap(ErrIllegalState, "invalid txn data - claim on a committed transaction")
		}
		claim = &commitClaim{
			owner:     txnData.Claim.Owner,
			expiresAt: time.Unix(0, txnData.Claim.ExpiresMs*int64(time.Millisecond)),
		}
	}

	return &Transaction{
		id:           txnData.ID,
		collectionID: txnData.Collection,
		epoch:        txnData.Epoch,
		status:       status,
		createdAt:    time.Unix(0, txnData.CreatedMs*int64(time.Millisecond)),
		operations:   operations,
		result:       result,
		claim:        claim,
	}, nil
}
