// Command pgwire-demo opens a pool against a single PostgreSQL database,
// serves /stats and /healthz for it, and watches its YAML config file for
// changes. A reload swaps the configuration that new connections dial with;
// the pool's sizing and timeouts stay as they were at startup.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pgwire/pgwire"
	"github.com/pgwire/pgwire/internal/adminapi"
	"github.com/pgwire/pgwire/internal/config"
	"github.com/pgwire/pgwire/internal/metrics"
	"github.com/pgwire/pgwire/internal/pool"
)

func main() {
	configPath := flag.String("config", "configs/pgwire.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("pgwire-demo starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("configuration loaded from %s (target %s@%s:%d/%s)", *configPath,
		cfg.Connection.Username, cfg.Connection.Host, cfg.Connection.Port, cfg.Connection.Database)

	m := metrics.New()

	dial := func(ctx context.Context) (*pgwire.Conn, error) {
		return pgwire.Connect(ctx, pgwire.Config{
			Host:     cfg.Connection.Host,
			Port:     cfg.Connection.Port,
			User:     cfg.Connection.Username,
			Password: cfg.Connection.Password,
			Database: cfg.Connection.Database,
			Metrics:  m,
		})
	}

	p := pool.New(pool.Config{
		Dial:           dial,
		Min:            cfg.Pool.MinConnections,
		Max:            cfg.Pool.MaxConnections,
		IdleTimeout:    cfg.Pool.IdleTimeout,
		MaxLifetime:    cfg.Pool.MaxLifetime,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		OnExhausted:    m.PoolExhausted,
	})

	// Report pool occupancy to Prometheus on a tick, the same cadence the
	// teacher's StartStatsLoop used for its per-tenant gauges.
	statsStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := p.Stats()
				m.UpdatePoolStats(s.Active, s.Idle, s.Total, s.Waiting)
			case <-statsStop:
				return
			}
		}
	}()

	admin := adminapi.NewServer(p, m)
	if err := admin.Start(cfg.Admin.Bind, cfg.Admin.Port); err != nil {
		log.Fatalf("failed to start admin API: %v", err)
	}

	watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Printf("configuration reloaded; new connections use the reloaded connection settings, pool sizing is unchanged")
		cfg = newCfg
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}

	log.Printf("pgwire-demo ready - admin API on %s:%d", cfg.Admin.Bind, cfg.Admin.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %s, shutting down...", sig)

	close(statsStop)
	if watcher != nil {
		watcher.Stop()
	}
	admin.Stop()
	p.Close()

	log.Printf("pgwire-demo stopped")
}
