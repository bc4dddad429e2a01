package pgwire_test

import (
	"context"
	"testing"
	"time"

	"github.com/pgwire/pgwire"
	"github.com/pgwire/pgwire/internal/protocol/faketest"
)

func TestConnectAndExecuteThroughPublicAPI(t *testing.T) {
	srv := faketest.Listen(t)
	fcCh := make(chan *faketest.Conn, 1)
	go func() {
		fc := srv.Accept()
		fc.ReadStartup()
		fc.SendAuthOK()
		fc.ExpectSimpleQuery()
		fc.SendEmptyCatalog()
		fcCh <- fc
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgwire.Connect(ctx, pgwire.Config{User: "alice", Host: "127.0.0.1", Port: srv.Port()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()
	fc := <-fcCh

	type outcome struct {
		res *pgwire.Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := conn.Execute(ctx, "SELECT 1")
		resCh <- outcome{res, err}
	}()

	fc.ExpectParse()
	fc.DrainUntilSync()
	fc.SendParseComplete()
	fc.SendParameterDescription(nil)
	fc.SendReadyForQuery('I')

	fc.DrainUntilSync()
	fc.SendBindComplete()
	fc.SendRowDescription([]string{"n"})
	fc.SendDataRow([]byte("1"))
	fc.SendCommandComplete("SELECT 1")
	fc.SendReadyForQuery('I')

	// Execute defers DEALLOCATE of its statement name; outside a
	// transaction that flushes immediately as a simple-query round trip.
	fc.ExpectSimpleQuery()
	fc.SendCommandComplete("DO")
	fc.SendReadyForQuery('I')

	out := <-resCh
	if out.err != nil {
		t.Fatalf("Execute: %v", out.err)
	}
	if len(out.res.Rows) != 1 || out.res.Rows[0].Columns[0] != "1" {
		t.Fatalf("unexpected result: %+v", out.res)
	}
}

func TestConnectURLRejectsBadScheme(t *testing.T) {
	_, err := pgwire.ConnectURL(context.Background(), "mysql://localhost/db")
	if err == nil || !pgwire.Is(err, pgwire.KindInterface) {
		t.Fatalf("expected KindInterface for a non-postgres URL, got %v", err)
	}
}

func TestNewPoolDialsThroughPublicAPI(t *testing.T) {
	srv := faketest.Listen(t)
	go func() {
		fc := srv.Accept()
		fc.ReadStartup()
		fc.SendAuthOK()
		fc.ExpectSimpleQuery()
		fc.SendEmptyCatalog()
	}()

	p := pgwire.NewPool(pgwire.PoolConfig{
		Dial: func(ctx context.Context) (*pgwire.Conn, error) {
			return pgwire.Connect(ctx, pgwire.Config{User: "alice", Host: "127.0.0.1", Port: srv.Port()})
		},
		Max: 1,
	})
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(conn)

	stats := p.Stats()
	if stats.Idle != 1 {
		t.Fatalf("stats.Idle = %d, want 1", stats.Idle)
	}
}
