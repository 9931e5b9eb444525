package api

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/unrolled/render"

	transactions "github.com/geodata/featuretxn"
)

type transactionHandler struct {
	txns *transactions.Transactions
	rd   *render.Render
}

func newTransactionHandler(txns *transactions.Transactions, rd *render.Render) *transactionHandler {
	return &transactionHandler{
		txns: txns,
		rd:   rd,
	}
}

type createRequest struct {
	Epoch *transactions.Epoch `json:"epoch"`
}

type createResponse struct {
	ID string `json:"id"`
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(errBadRequest, err.Error())
	}
	return data, nil
}

// Create handles POST .../transaction/ with an optional {"epoch": N} body.
func (h *transactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	var req createRequest
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			renderError(h.rd, w, errors.Wrap(errBadRequest, err.Error()))
			return
		}
	}

	txnID, err := h.txns.CreateTransaction(r.Context(), mux.Vars(r)["rid"], req.Epoch)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, createResponse{ID: txnID})
}

// transaction resolves the {tid} of the request and checks it belongs to
// the {rid} collection. A transaction of another collection is reported
// as missing.
func (h *transactionHandler) transaction(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	txnID := vars["tid"]

	txn, err := h.txns.GetTransaction(r.Context(), txnID)
	if err != nil {
		return "", err
	}
	if txn.CollectionID() != vars["rid"] {
		return "", errors.Wrapf(transactions.ErrTransactionNotFound,
			"transaction %s does not belong to collection %s", txnID, vars["rid"])
	}

	return txnID, nil
}

// Submit handles PUT .../transaction/{tid} with a [[opId, body|null], ...]
// body.
func (h *transactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	txnID, err := h.transaction(r)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	data, err := readBody(w, r)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	ops, err := transactions.DecodeSubmission(data)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	if err := h.txns.SubmitOperations(r.Context(), txnID, ops); err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, struct{}{})
}

// Results handles GET .../transaction/{tid}.
func (h *transactionHandler) Results(w http.ResponseWriter, r *http.Request) {
	txnID, err := h.transaction(r)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	outcomes, err := h.txns.ReadResults(r.Context(), txnID)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, transactions.ResultView(outcomes))
}

// Commit handles POST .../transaction/{tid}.
func (h *transactionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	txnID, err := h.transaction(r)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	result, err := h.txns.Commit(r.Context(), txnID)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, transactions.NewCommitView(result))
}

// Dispose handles DELETE .../transaction/{tid}.
func (h *transactionHandler) Dispose(w http.ResponseWriter, r *http.Request) {
	txnID, err := h.transaction(r)
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	if err := h.txns.Dispose(r.Context(), txnID); err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, struct{}{})
}
