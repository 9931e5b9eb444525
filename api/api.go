// Package api exposes the feature transaction engine over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/unrolled/render"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	transactions "github.com/geodata/featuretxn"
	"github.com/geodata/featuretxn/featurestore"
)

const apiPrefix = "/api/resource"

// maxBodySize bounds the request bodies read by the handlers.
const maxBodySize = 16 << 20

// FeatureReader gives read access to the features of a collection.
type FeatureReader interface {
	Feature(ctx context.Context, collectionID string, id transactions.RecordID) (featurestore.Feature, error)
	Features(ctx context.Context, collectionID string) ([]featurestore.Feature, error)
}

// Config configures the HTTP handler.
type Config struct {
	Transactions *transactions.Transactions
	Features     FeatureReader
	Authorizer   Authorizer
	Logger       *zap.Logger

	// WriteRateLimit is the number of mutating requests per second accepted
	// across all clients. Zero disables the limiter.
	WriteRateLimit float64
	WriteBurst     int
}

// NewHandler returns the router serving the transaction and feature
// endpoints.
func NewHandler(config Config) http.Handler {
	if config.Authorizer == nil {
		config.Authorizer = AllowAll{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	rd := render.New(render.Options{
		IndentJSON: false,
	})

	var limiter *rate.Limiter
	if config.WriteRateLimit > 0 {
		burst := config.WriteBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.WriteRateLimit), burst)
	}

	router := mux.NewRouter()
	router.Use(
		recoveryMiddleware(rd, config.Logger),
		loggingMiddleware(config.Logger),
		writeLimitMiddleware(rd, limiter),
		authorizeMiddleware(rd, config.Authorizer),
	)

	txnHandler := newTransactionHandler(config.Transactions, rd)
	featureHandler := newFeatureHandler(config.Features, rd)

	resource := router.PathPrefix(apiPrefix + "/{rid}/feature").Subrouter()
	resource.HandleFunc("/transaction/", txnHandler.Create).Methods("POST")
	resource.HandleFunc("/transaction/{tid}", txnHandler.Submit).Methods("PUT")
	resource.HandleFunc("/transaction/{tid}", txnHandler.Results).Methods("GET")
	resource.HandleFunc("/transaction/{tid}", txnHandler.Commit).Methods("POST")
	resource.HandleFunc("/transaction/{tid}", txnHandler.Dispose).Methods("DELETE")
	resource.HandleFunc("/", featureHandler.List).Methods("GET")
	resource.HandleFunc("/{fid}", featureHandler.Get).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderError(rd, w, errNotFoundRoute)
	})

	return router
}
