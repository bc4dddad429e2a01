// Package adminapi is a small HTTP surface for operators embedding a pgwire
// pool in a service — pool stats and a liveness probe, mirroring the shape of
// the teacher's internal/api server but without its multi-tenant CRUD surface,
// which has no equivalent in a single-database client library.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgwire/pgwire/internal/metrics"
	"github.com/pgwire/pgwire/internal/pool"
)

// Server exposes /stats, /healthz, and /metrics for a single pool.
type Server struct {
	pool       *pool.Pool
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates an admin API server for p. m may be nil, in which case
// /metrics is omitted.
func NewServer(p *pool.Pool, m *metrics.Collector) *Server {
	return &Server{
		pool:      p,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Start begins serving on bind:port in a background goroutine and returns
// nil without waiting for the listener to bind; a listen error is logged,
// not returned. Stop shuts the server down gracefully.
func (s *Server) Start(bind string, port int) error {
	r := mux.NewRouter()
	r.HandleFunc("/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	addr := fmt.Sprintf("%s:%d", bind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[adminapi] listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[adminapi] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the admin API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
	}
	if s.pool != nil {
		resp["pool"] = s.pool.Stats()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	stats := s.pool.Stats()
	if stats.MaxConns > 0 && stats.Total >= stats.MaxConns && stats.Idle == 0 && stats.Waiting > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "exhausted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
