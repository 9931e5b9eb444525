package api

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var nextRequestID uint64

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unknown"
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := atomic.AddUint64(&nextRequestID, 1)
			rw := negroni.NewResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			requestDuration.
				WithLabelValues(r.Method, routeTemplate(r), strconv.Itoa(rw.Status())).
				Observe(elapsed.Seconds())
			logger.Debug("request served",
				zap.Uint64("request", requestID),
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Int("status", rw.Status()),
				zap.Duration("elapsed", elapsed))
		})
	}
}

func recoveryMiddleware(rd *render.Render, logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recoveryErr := recover(); recoveryErr != nil {
					logger.Error("handler panicked",
						zap.Any("panic", recoveryErr),
						zap.ByteString("stack", debug.Stack()))
					renderError(rd, w, errors.New("a server error occurred"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// writeLimitMiddleware throttles every non-read request. A nil limiter
// accepts everything.
func writeLimitMiddleware(rd *render.Render, limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && requiredPermission(r) == PermissionWrite && !limiter.Allow() {
				renderError(rd, w, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorizeMiddleware(rd *render.Render, authorizer Authorizer) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			collectionID := mux.Vars(r)["rid"]
			if err := authorizer.Authorize(r, collectionID, requiredPermission(r)); err != nil {
				if !errors.Is(err, ErrForbidden) {
					err = errors.Wrap(ErrForbidden, err.Error())
				}
				renderError(rd, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
