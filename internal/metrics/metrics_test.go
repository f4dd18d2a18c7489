package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/mood/entry/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/mood/entry/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/mood/entry/1", "/mood/entry/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("expected 2 requests counted under the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(HTTPActiveRequests); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}
