// Package config loads the YAML file describing how to reach the target
// database and size its connection pool, hot-reloadable via fsnotify the
// same way the teacher's config.Load/config.NewWatcher pair works.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a pgwire-based service.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Pool       PoolConfig       `yaml:"pool"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ConnectionConfig describes the single database this process talks to.
type ConnectionConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"dbname"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"` // "disable", "require", "verify-full"
	RootCert string `yaml:"root_cert"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MinConnections int           `yaml:"min_connections"`
	MaxConnections int           `yaml:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// AdminConfig configures the optional HTTP admin surface.
type AdminConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Redacted returns a copy of ConnectionConfig with the password masked, for
// safe inclusion in logs.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	cp := c
	if cp.Password != "" {
		cp.Password = "***REDACTED***"
	}
	return cp
}

// TLSEnabled reports whether SSLMode requests an encrypted connection.
func (c ConnectionConfig) TLSEnabled() bool {
	return c.SSLMode != "" && c.SSLMode != "disable"
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Connection.Port == 0 {
		cfg.Connection.Port = 5432
	}
	if cfg.Connection.SSLMode == "" {
		cfg.Connection.SSLMode = "disable"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.Bind == "" {
		cfg.Admin.Bind = "127.0.0.1"
	}
	if cfg.Pool.MinConnections == 0 {
		cfg.Pool.MinConnections = 2
	}
	if cfg.Pool.MaxConnections == 0 {
		cfg.Pool.MaxConnections = 20
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = 5 * time.Minute
	}
	if cfg.Pool.MaxLifetime == 0 {
		cfg.Pool.MaxLifetime = 30 * time.Minute
	}
	if cfg.Pool.AcquireTimeout == 0 {
		cfg.Pool.AcquireTimeout = 10 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Connection.Host == "" {
		return fmt.Errorf("connection: host is required")
	}
	if cfg.Connection.Database == "" {
		return fmt.Errorf("connection: dbname is required")
	}
	if cfg.Connection.Username == "" {
		return fmt.Errorf("connection: username is required")
	}
	if cfg.Pool.MinConnections < 0 || cfg.Pool.MaxConnections < 0 {
		return fmt.Errorf("pool: connection counts must not be negative")
	}
	if cfg.Pool.MaxConnections > 0 && cfg.Pool.MinConnections > cfg.Pool.MaxConnections {
		return fmt.Errorf("pool: min_connections (%d) exceeds max_connections (%d)", cfg.Pool.MinConnections, cfg.Pool.MaxConnections)
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:    path,
		callback: callback,
		watcher: w,
		stopCh:  make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
