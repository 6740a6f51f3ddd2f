package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kentramx/kentramx-sub001/pkg/metrics"
)

// Metrics records request counts and latency per route pattern. Raw paths are
// never used as labels so ids in URLs cannot blow up cardinality.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.Start()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			done(r.Method, routePattern(r), rec.statusOrOK())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
