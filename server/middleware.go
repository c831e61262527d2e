package server

import (
	"context"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const backendCtxKey ctxKey = iota

// BackendCtx resolves the {backend} url param against the server registry
// and stores the loaded backend on the request context.
func (srv *Server) BackendCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := srv.Registry.Resolve(chi.URLParam(r, "backend"))
		if err != nil {
			respond.ImageError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), backendCtxKey, b)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func trackRoute(metricID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		key := []string{"route", metricID}
		errKey := []string{"route", metricID + "-err"}

		handler := func(w http.ResponseWriter, r *http.Request) {
			reqStart := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			metrics.MeasureSince(key, reqStart)
			if ww.Status() >= 400 {
				metrics.IncrCounter(errKey, 1)
			}
		}
		return http.HandlerFunc(handler)
	}
}
