package api

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/unrolled/render"

	transactions "github.com/geodata/featuretxn"
)

var (
	// ErrForbidden is returned by an Authorizer which denies the request.
	ErrForbidden = errors.New("forbidden")

	errBadRequest    = errors.New("bad request")
	errRateLimited   = errors.New("too many requests")
	errNotFoundRoute = errors.New("no such endpoint")
)

// errorBody is the JSON body of every non-2xx response.
type errorBody struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
}

func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "Bad request", "validation"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Forbidden", "forbidden"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "Too many requests", "rate_limited"
	case errors.Is(err, errNotFoundRoute):
		return http.StatusNotFound, "Not found", "not_found"
	}

	class := transactions.ClassifyError(err)
	switch class {
	case transactions.ErrorClassValidation:
		return http.StatusBadRequest, "Validation error", class.String()
	case transactions.ErrorClassConflict:
		return http.StatusConflict, "Conflict", class.String()
	case transactions.ErrorClassNotFound:
		return http.StatusNotFound, "Not found", class.String()
	case transactions.ErrorClassState:
		return http.StatusUnprocessableEntity, "Invalid state", class.String()
	}

	return http.StatusInternalServerError, "Internal server error", class.String()
}

func renderError(rd *render.Render, w http.ResponseWriter, err error) {
	status, title, name := errorStatus(err)
	_ = rd.JSON(w, status, errorBody{
		Title:      title,
		Message:    err.Error(),
		StatusCode: status,
		Error:      name,
	})
}
