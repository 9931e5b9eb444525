package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/unrolled/render"

	transactions "github.com/geodata/featuretxn"
)

type featureHandler struct {
	features FeatureReader
	rd       *render.Render
}

func newFeatureHandler(features FeatureReader, rd *render.Render) *featureHandler {
	return &featureHandler{
		features: features,
		rd:       rd,
	}
}

// List handles GET .../feature/.
func (h *featureHandler) List(w http.ResponseWriter, r *http.Request) {
	features, err := h.features.Features(r.Context(), mux.Vars(r)["rid"])
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, features)
}

// Get handles GET .../feature/{fid}.
func (h *featureHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fid, err := strconv.ParseInt(vars["fid"], 10, 64)
	if err != nil || fid <= 0 {
		renderError(h.rd, w, errors.Wrapf(errBadRequest, "invalid feature id %q", vars["fid"]))
		return
	}

	feature, err := h.features.Feature(r.Context(), vars["rid"], transactions.RecordID(fid))
	if err != nil {
		renderError(h.rd, w, err)
		return
	}

	_ = h.rd.JSON(w, http.StatusOK, feature)
}
