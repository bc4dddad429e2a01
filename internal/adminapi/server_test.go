package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgwire/pgwire/internal/metrics"
	"github.com/pgwire/pgwire/internal/pool"
)

// newTestRouter builds the same route table Start registers, without
// actually binding a TCP listener, so handlers can be exercised directly
// with httptest.
func newTestRouter(s *Server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

func TestStatsHandlerIncludesPoolStats(t *testing.T) {
	p := pool.New(pool.Config{Max: 4})
	defer p.Close()
	s := NewServer(p, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	newTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := body["pool"]; !ok {
		t.Error("expected a pool key in the stats response")
	}
	if _, ok := body["uptime_seconds"]; !ok {
		t.Error("expected an uptime_seconds key in the stats response")
	}
}

func TestHealthzHandlerOKWhenNotExhausted(t *testing.T) {
	p := pool.New(pool.Config{Max: 4})
	defer p.Close()
	s := NewServer(p, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	newTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpointOmittedWithoutCollector(t *testing.T) {
	p := pool.New(pool.Config{Max: 1})
	defer p.Close()
	s := NewServer(p, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	newTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when no metrics collector is wired", rec.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	p := pool.New(pool.Config{Max: 1})
	defer p.Close()
	m := metrics.New()
	s := NewServer(p, m)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	newTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
