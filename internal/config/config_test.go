package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgwire.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
connection:
  host: localhost
  port: 5432
  dbname: testdb
  username: testuser
  password: testpass

pool:
  min_connections: 2
  max_connections: 20
  idle_timeout: 5m
  max_lifetime: 30m
  acquire_timeout: 10s

admin:
  bind: 127.0.0.1
  port: 9090
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Connection.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", cfg.Connection.Host)
	}
	if cfg.Connection.Database != "testdb" {
		t.Errorf("Database = %q, want testdb", cfg.Connection.Database)
	}
	if cfg.Pool.MaxConnections != 20 {
		t.Errorf("MaxConnections = %d, want 20", cfg.Pool.MaxConnections)
	}
	if cfg.Pool.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want 5m", cfg.Pool.IdleTimeout)
	}
	if cfg.Admin.Port != 9090 {
		t.Errorf("Admin.Port = %d, want 9090", cfg.Admin.Port)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	yaml := `
connection:
  host: localhost
  dbname: testdb
  username: user
  password: ${TEST_DB_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Connection.Password != "secret123" {
		t.Errorf("Password = %q, want secret123", cfg.Connection.Password)
	}
}

func TestLoadEnvSubstitutionLeavesUnsetVarUntouched(t *testing.T) {
	os.Unsetenv("PGWIRE_TEST_UNSET_VAR")
	yaml := `
connection:
  host: localhost
  dbname: testdb
  username: user
  password: ${PGWIRE_TEST_UNSET_VAR}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Connection.Password != "${PGWIRE_TEST_UNSET_VAR}" {
		t.Errorf("Password = %q, want the pattern left intact", cfg.Connection.Password)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing host",
			yaml: `
connection:
  dbname: db
  username: user
`,
		},
		{
			name: "missing dbname",
			yaml: `
connection:
  host: localhost
  username: user
`,
		},
		{
			name: "missing username",
			yaml: `
connection:
  host: localhost
  dbname: db
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	yaml := `
connection:
  host: localhost
  dbname: db
  username: user
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Connection.Port != 5432 {
		t.Errorf("default port = %d, want 5432", cfg.Connection.Port)
	}
	if cfg.Connection.SSLMode != "disable" {
		t.Errorf("default sslmode = %q, want disable", cfg.Connection.SSLMode)
	}
	if cfg.Pool.MinConnections != 2 {
		t.Errorf("default min connections = %d, want 2", cfg.Pool.MinConnections)
	}
	if cfg.Pool.MaxConnections != 20 {
		t.Errorf("default max connections = %d, want 20", cfg.Pool.MaxConnections)
	}
	if cfg.Admin.Port != 8080 {
		t.Errorf("default admin port = %d, want 8080", cfg.Admin.Port)
	}
	if cfg.Admin.Bind != "127.0.0.1" {
		t.Errorf("default admin bind = %q, want 127.0.0.1", cfg.Admin.Bind)
	}
}

func TestValidateMinGtMaxConns(t *testing.T) {
	yaml := `
connection:
  host: localhost
  dbname: db
  username: user

pool:
  min_connections: 30
  max_connections: 10
`
	path := writeTemp(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error when min_connections > max_connections")
	}
}

func TestConnectionRedactedMasksPassword(t *testing.T) {
	c := ConnectionConfig{Host: "localhost", Password: "s3cret"}
	r := c.Redacted()
	if r.Password == "s3cret" || r.Password == "" {
		t.Errorf("Redacted().Password = %q, want masked", r.Password)
	}
	if c.Password != "s3cret" {
		t.Error("Redacted must not mutate the receiver")
	}
}

func TestConnectionTLSEnabled(t *testing.T) {
	cases := []struct {
		mode string
		want bool
	}{
		{"", false},
		{"disable", false},
		{"require", true},
		{"verify-full", true},
	}
	for _, tt := range cases {
		c := ConnectionConfig{SSLMode: tt.mode}
		if got := c.TLSEnabled(); got != tt.want {
			t.Errorf("TLSEnabled() with sslmode=%q = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	yaml := `
connection:
  host: localhost
  dbname: db
  username: user
`
	path := writeTemp(t, yaml)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	updated := `
connection:
  host: localhost
  dbname: db2
  username: user
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Connection.Database != "db2" {
			t.Errorf("reloaded Database = %q, want db2", cfg.Connection.Database)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never reloaded after file write")
	}
}
