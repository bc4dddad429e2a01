package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/pgwire/pgwire/internal/pool"
	"github.com/pgwire/pgwire/internal/protocol"
	"github.com/pgwire/pgwire/internal/protocol/faketest"
)

// dialFake spins up one fake backend that only answers the handshake and
// catalog bootstrap, then hands back a ready *protocol.Conn, the same
// synchronous-prefix pattern the protocol package's own tests use.
func dialFake(t *testing.T) *protocol.Conn {
	t.Helper()
	srv := faketest.Listen(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fc := srv.Accept()
		fc.ReadStartup()
		fc.SendAuthOK()
		fc.ExpectSimpleQuery()
		fc.SendEmptyCatalog()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := protocol.Connect(ctx, protocol.Config{User: "alice", Host: "127.0.0.1", Port: srv.Port()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-done
	return conn
}

func TestAcquireDialsUpToMax(t *testing.T) {
	p := pool.New(pool.Config{
		Dial: func(ctx context.Context) (*protocol.Conn, error) { return dialFake(t), nil },
		Max:  2,
	})
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if c1 == c2 {
		t.Fatal("expected two distinct connections")
	}
	stats := p.Stats()
	if stats.Active != 2 || stats.Total != 2 {
		t.Fatalf("stats = %+v, want Active=2 Total=2", stats)
	}
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	exhaustedCalls := 0
	p := pool.New(pool.Config{
		Dial:           func(ctx context.Context) (*protocol.Conn, error) { return dialFake(t), nil },
		Max:            1,
		AcquireTimeout: 100 * time.Millisecond,
		OnExhausted:    func() { exhaustedCalls++ },
	})
	defer p.Close()

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	_, err := p.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected a timeout acquiring past Max")
	}
	if exhaustedCalls == 0 {
		t.Error("expected OnExhausted to be called")
	}
}

func TestReleaseWakesWaiter(t *testing.T) {
	p := pool.New(pool.Config{
		Dial:           func(ctx context.Context) (*protocol.Conn, error) { return dialFake(t), nil },
		Max:            1,
		AcquireTimeout: 2 * time.Second,
	})
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}

	resultCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond) // let the second Acquire start waiting
	p.Release(conn)

	select {
	case err := <-resultCh:
		if err != nil {
			t.Fatalf("waiter Acquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never woken by Release")
	}
}

func TestInjectTestConnAndAcquireReusesIdle(t *testing.T) {
	p := pool.New(pool.Config{Max: 1})
	defer p.Close()

	conn := dialFake(t)
	p.InjectTestConn(conn)

	got, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != conn {
		t.Fatal("expected Acquire to return the injected connection")
	}
}

func TestReleaseClosesBrokenConnection(t *testing.T) {
	p := pool.New(pool.Config{Max: 1})
	defer p.Close()

	conn := dialFake(t)
	p.InjectTestConn(conn)
	got, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	got.Close()
	p.Release(got)

	if stats := p.Stats(); stats.Total != 0 || stats.Idle != 0 {
		t.Fatalf("stats = %+v, want a broken connection reaped on Release", stats)
	}
}

func TestDrainClosesIdleConnections(t *testing.T) {
	p := pool.New(pool.Config{Max: 2})
	conn := dialFake(t)
	p.InjectTestConn(conn)

	p.Drain()

	select {
	case <-conn.Closed():
	default:
		t.Fatal("expected Drain to close the idle connection")
	}
	if stats := p.Stats(); stats.Total != 0 {
		t.Fatalf("stats.Total = %d, want 0 after Drain", stats.Total)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := pool.New(pool.Config{Max: 1})
	p.Close()
	p.Close() // must not panic or block
}
