package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/lobby", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/seats", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	get, err := http.Get(ts.URL + "/v1/lobby")
	require.NoError(t, err)
	require.NoError(t, get.Body.Close())

	post, err := http.Post(ts.URL+"/v1/seats", "application/json", http.NoBody)
	require.NoError(t, err)
	require.NoError(t, post.Body.Close())

	require.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202")), 1.0)
	require.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestDuration, "http_request_duration_seconds"), 1)
}

func TestMiddlewareLabelsUnroutedRequests(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/no/such/route")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// chi leaves the route pattern empty for unrouted requests; the
	// middleware folds those into a single label so cardinality stays flat.
	require.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 1.0)
}
