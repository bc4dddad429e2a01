// Package tlsconfig builds the crypto/tls.Config used to upgrade a
// connection's SSLRequest handshake, the client-side counterpart of the
// teacher's NewServer TLS setup in proxy/server.go (which loads a server
// certificate/key pair for its listening side).
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pgwire/pgwire/internal/pgerr"
)

// Config describes how to build a client-side tls.Config for one connection.
type Config struct {
	// ServerName is used for SNI and certificate hostname verification; left
	// empty it defaults to the dial host.
	ServerName string
	// InsecureSkipVerify disables certificate verification entirely —
	// equivalent to sslmode=require with no CA, never the default.
	InsecureSkipVerify bool
	// RootCAFile, if set, is a PEM bundle trusted in place of the system pool.
	RootCAFile string
	// CertFile/KeyFile configure client certificate authentication.
	CertFile string
	KeyFile  string
}

// Build constructs a *tls.Config from cfg, mirroring the teacher's
// tls.LoadX509KeyPair + MinVersion pattern but with TLS 1.2 as the floor
// applied uniformly whether or not a client certificate is configured.
func Build(cfg Config) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.RootCAFile != "" {
		pem, err := os.ReadFile(cfg.RootCAFile)
		if err != nil {
			return nil, pgerr.Wrap(pgerr.KindOperational, err, "reading TLS root CA file %q", cfg.RootCAFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, pgerr.New(pgerr.KindOperational, "no certificates parsed from root CA file %q", cfg.RootCAFile)
		}
		tc.RootCAs = pool
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, pgerr.Wrap(pgerr.KindOperational, err, "loading TLS client cert/key pair")
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}
