// Package protocol implements the PostgreSQL frontend/backend wire protocol
// engine: framing, startup/auth, the simple and extended query protocols,
// and the transaction/savepoint and cursor drivers built on top of it.
package protocol

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os/user"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgwire/pgwire/internal/codec"
)

// Config describes how to dial and authenticate a connection.
type Config struct {
	Host     string
	Port     int
	Socket   string // unix domain socket path; overrides Host/Port when set
	User     string
	Password string
	Database string
	TLS      *tls.Config // non-nil requests an SSLRequest upgrade before startup
	Format   codec.Format // zero value (FormatUnspecified) resolves to codec.DefaultFormat
	Logger   Logger
	Metrics  Metrics // optional; nil skips query/notice/byte-framing instrumentation
}

// Notice is one accumulated NoticeResponse, kept in arrival order.
type Notice struct {
	Severity string
	Message  string
	Fields   map[byte]string
}

// Conn owns one backend socket and the protocol state machine driving it.
// The socket is written to only by the sender goroutine and read only by
// the receiver goroutine; every other field protected by mu is read by
// callers only after the ready-gate reopens, per the connection's
// single-writer discipline.
type Conn struct {
	netConn net.Conn
	logger  Logger
	metrics Metrics
	format  codec.Format
	codec   *codec.Registry

	outbox chan Message

	mu        sync.Mutex
	readyCond *sync.Cond
	ready     bool
	waitCh    chan Message

	txStatus     TxStatus
	serverVars   map[string]string
	notices      []Notice
	backendPID   int32
	backendKey   int32
	stmtsToClose map[string]struct{}

	rowCount    int64
	hasRowCount bool

	owner any

	closing   bool
	closed    chan struct{}
	closeOnce sync.Once

	counter atomic.Uint64

	senderDone   chan struct{}
	receiverDone chan struct{}

	recvBuf []byte
}

// Connect dials, optionally upgrades to TLS, performs startup and
// authentication synchronously, then starts the sender/receiver goroutines
// and loads the value codec's type catalog before returning.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	network, addr := dialTarget(cfg)
	var d net.Dialer
	raw, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, wrapErr(KindOperational, err, "dialing %s %s", network, addr)
	}

	if cfg.TLS != nil {
		tlsCfg := cfg.TLS
		if tlsCfg.ServerName == "" && network == "tcp" {
			tlsCfg = tlsCfg.Clone()
			tlsCfg.ServerName, _, _ = net.SplitHostPort(addr)
		}
		raw, err = negotiateTLS(ctx, raw, tlsCfg)
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewSlogLogger(nil)
	}

	format := cfg.Format
	if format == codec.FormatUnspecified {
		format = codec.DefaultFormat
	}

	c := &Conn{
		netConn:      raw,
		logger:       logger,
		metrics:      cfg.Metrics,
		format:       format,
		codec:        codec.NewRegistry(),
		outbox:       make(chan Message, 1),
		serverVars:   make(map[string]string),
		stmtsToClose: make(map[string]struct{}),
		closed:       make(chan struct{}),
		senderDone:   make(chan struct{}),
		receiverDone: make(chan struct{}),
	}
	c.readyCond = sync.NewCond(&c.mu)

	username := cfg.User
	if username == "" {
		username = currentOSUser()
	}
	database := cfg.Database
	if database == "" {
		database = username
	}

	startup := StartupMessage{
		Version: 0x00030000,
		Params:  []KV{{Key: "user", Value: username}, {Key: "database", Value: database}},
	}
	if err := c.writeDirect(startup); err != nil {
		raw.Close()
		return nil, err
	}
	if err := c.authenticate(username, cfg.Password); err != nil {
		raw.Close()
		return nil, err
	}
	if err := c.finishStartup(); err != nil {
		raw.Close()
		return nil, err
	}

	go c.senderLoop()
	go c.receiverLoop()

	if err := c.loadCatalog(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func dialTarget(cfg Config) (network, addr string) {
	if cfg.Socket != "" {
		return "unix", cfg.Socket
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

func currentOSUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "postgres"
}

// negotiateTLS writes the pre-startup SSLRequest and, on an 'S' reply,
// wraps raw in a TLS client connection.
func negotiateTLS(ctx context.Context, raw net.Conn, cfg *tls.Config) (net.Conn, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, SSLRequest{}); err != nil {
		return nil, err
	}
	if _, err := raw.Write(buf.Bytes()); err != nil {
		return nil, wrapErr(KindOperational, err, "sending SSLRequest")
	}
	reply := make([]byte, 1)
	if _, err := io.ReadFull(raw, reply); err != nil {
		return nil, wrapErr(KindOperational, err, "reading SSLRequest reply")
	}
	switch reply[0] {
	case 'S':
		tlsConn := tls.Client(raw, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, wrapErr(KindOperational, err, "TLS handshake")
		}
		return tlsConn, nil
	case 'N':
		return nil, newErr(KindOperational, "server declined SSL request")
	default:
		return nil, newErr(KindInternal, "unexpected SSLRequest reply byte %q", reply[0])
	}
}

// writeDirect performs a synchronous encode+write, used only before the
// sender goroutine exists (startup and authentication).
func (c *Conn) writeDirect(msg Message) error {
	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		return err
	}
	if _, err := c.netConn.Write(buf.Bytes()); err != nil {
		return wrapErr(KindOperational, err, "writing during startup")
	}
	return nil
}

// recvDuringStartup reads and decodes the next message synchronously,
// before the receiver goroutine takes over the socket.
func (c *Conn) recvDuringStartup() (Message, error) {
	return c.readMessage()
}

// readMessage decodes the next frame out of recvBuf, reading more bytes
// off the socket as needed.
func (c *Conn) readMessage() (Message, error) {
	for {
		msg, n, err := Decode(c.recvBuf)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			c.recvBuf = c.recvBuf[n:]
			return msg, nil
		}
		buf := make([]byte, 4096)
		k, err := c.netConn.Read(buf)
		if err != nil {
			return nil, wrapErr(KindOperational, err, "reading from connection")
		}
		if c.metrics != nil {
			c.metrics.BytesFramed("received", k)
		}
		c.recvBuf = append(c.recvBuf, buf[:k]...)
	}
}

// finishStartup consumes ParameterStatus/BackendKeyData/NoticeResponse
// until the first ReadyForQuery, then marks the connection ready.
func (c *Conn) finishStartup() error {
	for {
		msg, err := c.recvDuringStartup()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case ParameterStatus:
			c.serverVars[m.Name] = m.Value
		case BackendKeyData:
			c.backendPID = m.PID
			c.backendKey = m.Key
		case NoticeResponse:
			c.recordNotice(m)
		case ReadyForQuery:
			c.txStatus = m.Status
			c.ready = true
			return nil
		case ErrorResponse:
			return databaseError(m.Fields, "")
		default:
			return newErr(KindInternal, "unexpected message %T during startup", msg)
		}
	}
}

func (c *Conn) recordNotice(m NoticeResponse) {
	n := Notice{
		Severity: m.Fields[FieldSeverity],
		Message:  m.Fields[FieldMessage],
		Fields:   m.Fields,
	}
	c.notices = append(c.notices, n)
	c.logger.Warn("pg notice", "severity", n.Severity, "message", n.Message)
	if c.metrics != nil {
		c.metrics.NoticeReceived()
	}
}

// loadCatalog runs the bootstrap pg_type query in text format — the codec
// registry cannot decode BINARY until it knows the server's OIDs — and
// feeds the result back into the registry.
func (c *Conn) loadCatalog(ctx context.Context) error {
	rows, err := c.simpleQueryText(ctx, "select typname, oid, typarray from pg_catalog.pg_type")
	if err != nil {
		return err
	}
	catalog := make([]codec.CatalogRow, 0, len(rows))
	for _, row := range rows {
		if len(row) != 3 {
			continue
		}
		oid, _ := strconv.ParseUint(row[1], 10, 32)
		typarray, _ := strconv.ParseUint(row[2], 10, 32)
		catalog = append(catalog, codec.CatalogRow{TypName: row[0], OID: uint32(oid), TypArray: uint32(typarray)})
	}
	c.codec.LoadFromCatalog(catalog)
	return nil
}

// simpleQueryText runs a bootstrap simple-query and returns its result rows
// as raw text columns, bypassing the public Execute path (which requires
// the catalog this call is loading to already be populated).
func (c *Conn) simpleQueryText(ctx context.Context, sql string) ([][]string, error) {
	if err := c.claimReady(ctx); err != nil {
		return nil, err
	}
	ch := make(chan Message)
	c.mu.Lock()
	c.waitCh = ch
	c.mu.Unlock()
	defer c.endRequest()

	if err := c.send(Query{SQL: sql}); err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		msg, err := c.awaitReply(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case RowDescription, ParseComplete, BindComplete:
			// column layout not needed; text columns decode trivially.
		case DataRow:
			row := make([]string, len(m.Columns))
			for i, col := range m.Columns {
				row[i] = string(col)
			}
			rows = append(rows, row)
		case CommandComplete, EmptyQueryResponse:
		case ErrorResponse:
			return nil, databaseError(m.Fields, sql)
		case ReadyForQuery:
			return rows, nil
		default:
			return nil, newErr(KindInternal, "unexpected message %T during bootstrap query", msg)
		}
	}
}

// senderLoop drains outbox and writes frames to the socket. A nil Message
// is the shutdown sentinel.
func (c *Conn) senderLoop() {
	defer close(c.senderDone)
	for msg := range c.outbox {
		if msg == nil {
			return
		}
		var buf bytes.Buffer
		if err := Encode(&buf, msg); err != nil {
			c.fail(err)
			return
		}
		if _, err := c.netConn.Write(buf.Bytes()); err != nil {
			c.fail(wrapErr(KindOperational, err, "writing to connection"))
			return
		}
		if c.metrics != nil {
			c.metrics.BytesFramed("sent", buf.Len())
		}
	}
}

// receiverLoop reads and decodes frames, routing them to whichever caller
// is currently waiting (if any) or handling them as unsolicited.
func (c *Conn) receiverLoop() {
	defer close(c.receiverDone)
	for {
		msg, err := c.readMessage()
		if err != nil {
			c.fail(err)
			return
		}
		switch m := msg.(type) {
		case ParameterStatus:
			c.mu.Lock()
			c.serverVars[m.Name] = m.Value
			c.mu.Unlock()
		case NoticeResponse:
			c.mu.Lock()
			c.recordNotice(m)
			c.mu.Unlock()
		case NotificationResponse:
			c.logger.Warn("notification received but LISTEN/NOTIFY streaming is unsupported", "channel", m.Channel, "pid", m.PID)
		case ReadyForQuery:
			c.mu.Lock()
			c.txStatus = m.Status
			c.ready = true
			ch := c.waitCh
			c.readyCond.Broadcast()
			c.mu.Unlock()
			if ch != nil && !c.deliver(ch, msg) {
				return
			}
		default:
			c.mu.Lock()
			ch := c.waitCh
			c.mu.Unlock()
			if ch == nil {
				c.fail(newErr(KindInternal, "unsolicited message %T outside of a request", msg))
				return
			}
			if !c.deliver(ch, msg) {
				return
			}
		}
	}
}

func (c *Conn) deliver(ch chan Message, msg Message) bool {
	select {
	case ch <- msg:
		return true
	case <-c.closed:
		return false
	}
}

// claimReady blocks until the ready-gate opens, then claims it (clearing
// ready until the next ReadyForQuery). Cancellation wakes the condvar wait
// via a short-lived watcher goroutine, mirroring the teacher's
// timer-driven wakeups in its own acquire wait loop.
func (c *Conn) claimReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.ready {
		if c.closing {
			return newErr(KindInterface, "connection is closing")
		}
		select {
		case <-c.closed:
			return c.closedErrLocked()
		default:
		}
		waitDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				c.mu.Lock()
				c.readyCond.Broadcast()
				c.mu.Unlock()
			case <-waitDone:
			}
		}()
		c.readyCond.Wait()
		close(waitDone)
		if ctx.Err() != nil {
			return wrapErr(KindTimeout, ctx.Err(), "waiting for connection to become ready")
		}
	}
	c.ready = false
	return nil
}

func (c *Conn) endRequest() {
	c.mu.Lock()
	c.waitCh = nil
	c.mu.Unlock()
}

// checkOwner binds the connection to the first context it sees and rejects
// calls made with a different context afterwards, per the owner-check
// invariant. Pool.Acquire calls ResetOwner before handing out an idle
// connection so it can be rebound to its next caller.
func (c *Conn) checkOwner(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == nil {
		c.owner = ctx
		return nil
	}
	if c.owner != any(ctx) {
		return newErr(KindInterface, "connection is already owned by another caller")
	}
	return nil
}

// ResetOwner releases the current owner binding, called by the pool when an
// idle connection is handed out again so the new acquirer can bind fresh.
func (c *Conn) ResetOwner() {
	c.mu.Lock()
	c.owner = nil
	c.mu.Unlock()
}

func (c *Conn) send(msg Message) error {
	select {
	case c.outbox <- msg:
		return nil
	case <-c.closed:
		return c.closedErr()
	}
}

// awaitReply blocks for the next message routed to the caller's inbound
// channel, a context cancellation, or connection closure.
func (c *Conn) awaitReply(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-c.waitCh:
		if !ok {
			return nil, c.closedErr()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, wrapErr(KindTimeout, ctx.Err(), "awaiting server reply")
	case <-c.closed:
		return nil, c.closedErr()
	}
}

// drainToReady ignores ctx and keeps consuming messages until
// ReadyForQuery arrives or timeout elapses, used after a cancelled
// in-flight request so the connection can still be returned to the ready
// state (or correctly marked broken) per the drain contract.
func (c *Conn) drainToReady(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg, ok := <-c.waitCh:
			if !ok {
				return c.closedErr()
			}
			if _, ok := msg.(ReadyForQuery); ok {
				return nil
			}
		case <-deadline.C:
			c.fail(newErr(KindOperational, "timed out draining to ReadyForQuery after cancellation"))
			return c.closedErr()
		case <-c.closed:
			return c.closedErr()
		}
	}
}

func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		c.netConn.Close()
		close(c.closed)
	})
}

func (c *Conn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedErrLocked()
}

func (c *Conn) closedErrLocked() error {
	return newErr(KindOperational, "connection is closed")
}

// Close requests an orderly shutdown: Terminate is sent if the connection
// is still writable, then the socket is closed. Idempotent; the Closed()
// channel fires exactly once regardless of how many times Close is called.
func (c *Conn) Close() error {
	c.mu.Lock()
	already := c.closing
	c.closing = true
	c.mu.Unlock()

	if !already {
		select {
		case c.outbox <- Terminate{}:
			select {
			case c.outbox <- nil:
			case <-c.closed:
			}
		case <-c.closed:
		}
	}
	c.closeOnce.Do(func() {
		c.netConn.Close()
		close(c.closed)
	})
	return nil
}

// Closed returns a channel closed exactly once, when the connection has
// fully shut down.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

func (c *Conn) nextName(kind string) string {
	n := c.counter.Add(1)
	return fmt.Sprintf("pgwire_%s_%d", kind, n)
}

// ServerVars returns a snapshot of the GUC values reported via
// ParameterStatus so far.
func (c *Conn) ServerVars() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.serverVars))
	for k, v := range c.serverVars {
		out[k] = v
	}
	return out
}

// Notices returns a snapshot of the notices accumulated so far.
func (c *Conn) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

// RowCount reports the row count of the most recently completed command,
// or ok=false when the command carried none (e.g. an empty query).
func (c *Conn) RowCount() (n int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rowCount, c.hasRowCount
}

// InTransaction reports whether the connection is inside a transaction
// block, including one that has hit an error and is awaiting ROLLBACK.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus == TxInTx || c.txStatus == TxError
}

func (c *Conn) setRowCount(tag string) {
	n, ok := parseCommandTag(tag)
	c.mu.Lock()
	c.rowCount, c.hasRowCount = n, ok
	c.mu.Unlock()
}

// parseCommandTag extracts the row count out of a CommandComplete tag like
// "INSERT 0 3", "UPDATE 2", "SELECT 5", or "DELETE 1". Tags without a
// trailing count (e.g. "BEGIN", "CREATE TABLE") report ok=false.
func parseCommandTag(tag string) (int64, bool) {
	var last string
	start := -1
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ' ' {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	last = tag[start:]
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
