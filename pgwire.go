// Package pgwire is a PostgreSQL wire-protocol v3.0 client: connection
// handling, the simple and extended query protocols, a value codec,
// transactions/savepoints, cursors, and a connection pool, without going
// through database/sql.
package pgwire

import (
	"context"

	"github.com/pgwire/pgwire/internal/codec"
	"github.com/pgwire/pgwire/internal/dsn"
	"github.com/pgwire/pgwire/internal/pgerr"
	"github.com/pgwire/pgwire/internal/pool"
	"github.com/pgwire/pgwire/internal/protocol"
	"github.com/pgwire/pgwire/internal/tlsconfig"
)

// Re-exported types so callers never need to import the internal packages
// directly.
type (
	Conn         = protocol.Conn
	Config       = protocol.Config
	Row          = protocol.Row
	Result       = protocol.Result
	Tx           = protocol.Tx
	TxOptions    = protocol.TxOptions
	Isolation    = protocol.Isolation
	Cursor       = protocol.Cursor
	Notice       = protocol.Notice
	Format       = codec.Format
	Logger       = protocol.Logger
	Pool         = pool.Pool
	PoolConfig   = pool.Config
	PoolStats    = pool.Stats
	TLSConfig    = tlsconfig.Config
)

// Format values for Config.Format. Leaving Config.Format unset selects
// Binary, the protocol's default wire format.
const (
	Text   = codec.Text
	Binary = codec.Binary
)

// Isolation levels for TxOptions.
const (
	IsolationDefault       = protocol.IsolationDefault
	IsolationReadCommitted = protocol.IsolationReadCommitted
	IsolationRepeatable    = protocol.IsolationRepeatable
	IsolationSerializable  = protocol.IsolationSerializable
)

// Error kinds, re-exported for callers checking an error's kind via Is.
const (
	KindInterface   = pgerr.KindInterface
	KindProgramming = pgerr.KindProgramming
	KindDatabase    = pgerr.KindDatabase
	KindData        = pgerr.KindData
	KindOperational = pgerr.KindOperational
	KindInternal    = pgerr.KindInternal
	KindTimeout     = pgerr.KindTimeout
)

// Is reports whether err is a pgwire error of the given Kind. Errors that
// merely wrap one are not unwrapped.
func Is(err error, kind pgerr.Kind) bool { return pgerr.Is(err, kind) }

// NewSlogLogger adapts a log/slog.Logger into a Logger. A nil argument uses
// slog.Default().
var NewSlogLogger = protocol.NewSlogLogger

// Connect opens a single connection to a PostgreSQL server and runs the
// startup/authentication handshake before returning.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	return protocol.Connect(ctx, cfg)
}

// ConnectURL parses a postgresql:// URL and connects to it, the one-step
// convenience most callers reach for instead of building a Config by hand.
func ConnectURL(ctx context.Context, url string) (*Conn, error) {
	cfg, err := dsn.Parse(url)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, cfg)
}

// BuildTLSConfig builds a *tls.Config from the given TLSConfig and returns
// a Config whose TLS field holds it, the client-side counterpart of loading
// a server's own certificate/key pair.
func BuildTLSConfig(cfg TLSConfig) (*Config, error) {
	tc, err := tlsconfig.Build(cfg)
	if err != nil {
		return nil, err
	}
	return &Config{TLS: tc}, nil
}

// NewPool creates a connection pool. cfg.Dial is typically a closure over
// Connect or ConnectURL with a fixed Config.
func NewPool(cfg PoolConfig) *Pool {
	return pool.New(cfg)
}
