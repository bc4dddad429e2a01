// Package pool implements a bounded collection of pgwire connections to a
// single database, adapted from the teacher's per-tenant TenantPool/Manager
// pair collapsed into one type: a pgwire Pool only ever serves one
// database, so there is no tenant multiplexing layer.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/pgwire/pgwire/internal/pgerr"
	"github.com/pgwire/pgwire/internal/protocol"
)

// Dialer creates a fresh, ready connection.
type Dialer func(ctx context.Context) (*protocol.Conn, error)

// InitFunc runs against a freshly dialed connection before it joins the
// idle list, e.g. to set session GUCs.
type InitFunc func(ctx context.Context, conn *protocol.Conn) error

// OnExhausted is called when Acquire must wait because the pool is at Max.
type OnExhausted func()

// Config configures a Pool.
type Config struct {
	Dial           Dialer
	Min            int
	Max            int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	AcquireTimeout time.Duration
	ReapInterval   time.Duration
	Init           InitFunc
	Logger         protocol.Logger
	OnExhausted    OnExhausted
}

// Stats reports a point-in-time snapshot of pool occupancy.
type Stats struct {
	Active    int
	Idle      int
	Total     int
	Waiting   int
	MaxConns  int
	MinConns  int
	Exhausted int64
}

type pooledConn struct {
	conn      *protocol.Conn
	createdAt time.Time
	lastUsed  time.Time
}

func (pc *pooledConn) isExpired(maxLifetime time.Duration) bool {
	return maxLifetime > 0 && time.Since(pc.createdAt) > maxLifetime
}

func (pc *pooledConn) isBroken() bool {
	select {
	case <-pc.conn.Closed():
		return true
	default:
		return false
	}
}

// Pool maintains [Min..Max] live connections to one database, with FIFO
// waiters and broken-connection replacement, directly adapted from the
// teacher's TenantPool: same idle/active/sync.Cond wait-loop/idle-reaper
// shape, a pooledConn wrapping a *protocol.Conn instead of a raw net.Conn.
// A "broken" connection is detected through the engine's own Closed()
// event rather than the teacher's 1-byte Ping read, since stealing a byte
// off an extended-query connection would desynchronize its framing.
type Pool struct {
	cfg  Config
	mu   sync.Mutex
	cond *sync.Cond

	idle      []*pooledConn
	active    map[*protocol.Conn]*pooledConn
	total     int
	waiting   int
	exhausted int64

	closed bool
	stopCh chan struct{}
}

// New constructs a Pool and starts its background idle reaper and (if
// Min > 0) warm-up goroutines.
func New(cfg Config) *Pool {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = protocol.NewSlogLogger(nil)
	}
	p := &Pool{
		cfg:    cfg,
		active: make(map[*protocol.Conn]*pooledConn),
		stopCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.reapLoop()
	if cfg.Min > 0 {
		go p.warmUp()
	}
	return p
}

// warmUp pre-creates Min idle connections so the pool is ready for traffic.
func (p *Pool) warmUp() {
	for i := 0; i < p.cfg.Min; i++ {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.Min {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		pc, err := p.dialAndInit(context.Background())
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.cfg.Logger.Warn("pool warm-up connection failed", "index", i+1, "of", p.cfg.Min, "err", err)
			return
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			pc.conn.Close()
			return
		}
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}
	p.cfg.Logger.Warn("pre-warmed connections", "count", p.cfg.Min)
}

func (p *Pool) dialAndInit(ctx context.Context) (*pooledConn, error) {
	conn, err := p.cfg.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if p.cfg.Init != nil {
		if err := p.cfg.Init(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}
	now := time.Now()
	return &pooledConn{conn: conn, createdAt: now, lastUsed: now}, nil
}

// Acquire returns an idle connection or dials a new one if under Max,
// otherwise waits FIFO for one to be released. Exceeding AcquireTimeout
// (or ctx's own deadline, whichever is sooner) surfaces a KindTimeout
// error.
func (p *Pool) Acquire(ctx context.Context) (*protocol.Conn, error) {
	deadlineAt := time.Now().Add(p.cfg.AcquireTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadlineAt) {
		deadlineAt = d
	}

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, pgerr.Wrap(pgerr.KindTimeout, ctx.Err(), "pool acquire cancelled")
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, pgerr.New(pgerr.KindInterface, "pool is closed")
		}

		for len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]

			if pc.isExpired(p.cfg.MaxLifetime) || pc.isBroken() {
				pc.conn.Close()
				p.total--
				continue
			}

			pc.conn.ResetOwner()
			pc.lastUsed = time.Now()
			p.active[pc.conn] = pc
			p.mu.Unlock()
			return pc.conn, nil
		}

		if p.total < p.cfg.Max {
			p.total++
			p.mu.Unlock()

			pc, err := p.dialAndInit(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, pgerr.Wrap(pgerr.KindOperational, err, "dialing pool connection")
			}
			p.mu.Lock()
			p.active[pc.conn] = pc
			p.mu.Unlock()
			return pc.conn, nil
		}

		p.waiting++
		p.exhausted++
		cb := p.cfg.OnExhausted
		p.mu.Unlock()
		if cb != nil {
			cb()
		}

		p.mu.Lock()
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			p.waiting--
			p.mu.Unlock()
			return nil, pgerr.New(pgerr.KindTimeout, "acquire timeout (%s): pool exhausted", p.cfg.AcquireTimeout)
		}

		// Wake ourselves on timeout even if nobody returns a connection.
		timer := time.AfterFunc(remaining, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		p.cond.Wait() // releases mu, waits for signal, reacquires mu
		timer.Stop()
		p.waiting--

		if p.closed {
			p.mu.Unlock()
			return nil, pgerr.New(pgerr.KindInterface, "pool is closing")
		}
		if time.Now().After(deadlineAt) {
			p.mu.Unlock()
			return nil, pgerr.New(pgerr.KindTimeout, "acquire timeout (%s): pool exhausted", p.cfg.AcquireTimeout)
		}
		// Retry from the top of the loop (mu is held).
	}
}

// InjectTestConn adds a pre-built connection directly into the idle list,
// bypassing Dial/Init. Test-only.
func (p *Pool) InjectTestConn(conn *protocol.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.idle = append(p.idle, &pooledConn{conn: conn, createdAt: now, lastUsed: now})
	p.total++
	p.cond.Signal()
}

// Release returns conn to the pool. A broken or expired connection is
// closed and its slot freed rather than recycled. Release is a no-op (the
// caller's bug, not the pool's) if conn was not checked out of this pool.
func (p *Pool) Release(conn *protocol.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.active[conn]
	if !ok {
		return
	}
	delete(p.active, conn)

	if p.closed || pc.isExpired(p.cfg.MaxLifetime) || pc.isBroken() {
		pc.conn.Close()
		p.total--
		p.cond.Signal()
		return
	}

	pc.lastUsed = time.Now()
	p.idle = append(p.idle, pc)
	// Signal, not Broadcast: wakes exactly one FIFO waiter, avoiding the
	// thundering herd where Broadcast would wake every waiter only for all
	// but one to go back to sleep. Broadcast is reserved for Close/timeout.
	p.cond.Signal()
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:    len(p.active),
		Idle:      len(p.idle),
		Total:     p.total,
		Waiting:   p.waiting,
		MaxConns:  p.cfg.Max,
		MinConns:  p.cfg.Min,
		Exhausted: p.exhausted,
	}
}

// Drain closes all idle connections immediately and waits up to 30s for
// active ones to be released, force-closing any still outstanding after
// that — the same belt-and-suspenders timeout the teacher's Drain uses.
func (p *Pool) Drain() {
	p.mu.Lock()
	for _, pc := range p.idle {
		pc.conn.Close()
		p.total--
	}
	p.idle = p.idle[:0]
	activeCount := len(p.active)
	p.mu.Unlock()

	if activeCount == 0 {
		return
	}
	p.cfg.Logger.Warn("draining active pool connections", "count", activeCount)

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			if len(p.active) == 0 {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
		case <-timeout:
			p.mu.Lock()
			for _, pc := range p.active {
				pc.conn.Close()
			}
			p.active = make(map[*protocol.Conn]*pooledConn)
			p.mu.Unlock()
			p.cfg.Logger.Warn("force-closed active connections after drain timeout")
			return
		}
	}
}

// Close shuts down the pool. Safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	p.cond.Broadcast() // wake any goroutines waiting in Acquire
	p.mu.Unlock()

	p.Drain()
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

// reapIdle closes idle connections that have sat unused past IdleTimeout
// or outlived MaxLifetime, down to a floor of Min connections. Oldest
// (front-of-slice) connections are reaped first; the newest are kept.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) <= p.cfg.Min {
		return
	}
	kept := make([]*pooledConn, 0, len(p.idle))
	excess := len(p.idle) - p.cfg.Min
	for i, pc := range p.idle {
		stale := (p.cfg.IdleTimeout > 0 && time.Since(pc.lastUsed) > p.cfg.IdleTimeout) || pc.isExpired(p.cfg.MaxLifetime)
		if i < excess && stale {
			pc.conn.Close()
			p.total--
		} else {
			kept = append(kept, pc)
		}
	}
	p.idle = kept
}
