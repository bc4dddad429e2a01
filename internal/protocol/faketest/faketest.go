// Package faketest speaks just enough of the backend side of the
// PostgreSQL wire protocol to drive protocol.Connect and the extended
// query protocol from tests, grounded in the teacher's
// proxy/integration_test.go pattern of hand-rolling wire bytes over a
// real net.Conn rather than mocking at a higher layer.
package faketest

import (
	"encoding/binary"
	"net"
	"testing"
)

// Server accepts one real TCP connection per test and lets the caller
// drive the backend side of the handshake and query protocol by hand.
type Server struct {
	t  testing.TB
	ln net.Listener
}

// Listen starts a loopback listener; the caller reads Addr()/Port() to
// point protocol.Config at it.
func Listen(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("faketest: listen: %v", err)
	}
	s := &Server{t: t, ln: ln}
	t.Cleanup(func() { ln.Close() })
	return s
}

// Port returns the listener's loopback port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Accept blocks for the next inbound connection and wraps it.
func (s *Server) Accept() *Conn {
	s.t.Helper()
	c, err := s.ln.Accept()
	if err != nil {
		s.t.Fatalf("faketest: accept: %v", err)
	}
	fc := &Conn{t: s.t, c: c}
	s.t.Cleanup(func() { c.Close() })
	return fc
}

// Conn is one accepted backend-side connection.
type Conn struct {
	t   testing.TB
	c   net.Conn
	buf []byte
}

// ReadStartup reads either a plain StartupMessage (returning its
// key/value params) or an SSLRequest (in which case ssl is true and the
// caller should reply 'N' then call ReadStartup again).
func (fc *Conn) ReadStartup() (params map[string]string, ssl bool) {
	fc.t.Helper()
	lenBuf := fc.readN(4)
	n := int(binary.BigEndian.Uint32(lenBuf))
	body := fc.readN(n - 4)

	if len(body) == 8 && binary.BigEndian.Uint32(body[0:4]) == 80877103 {
		return nil, true
	}

	params = make(map[string]string)
	pos := 4 // skip protocol version
	for pos < len(body) {
		keyEnd := indexZero(body[pos:])
		if keyEnd == 0 && pos >= len(body)-1 {
			break
		}
		key := string(body[pos : pos+keyEnd])
		pos += keyEnd + 1
		if key == "" {
			break
		}
		valEnd := indexZero(body[pos:])
		val := string(body[pos : pos+valEnd])
		pos += valEnd + 1
		params[key] = val
	}
	return params, false
}

// WriteSSLReply answers an SSLRequest with a single 'N' (no TLS).
func (fc *Conn) WriteSSLReply() {
	if _, err := fc.c.Write([]byte{'N'}); err != nil {
		fc.t.Fatalf("faketest: write ssl reply: %v", err)
	}
}

// ReadPassword reads a PasswordMessage ('p') and returns its payload
// minus the trailing NUL.
func (fc *Conn) ReadPassword() string {
	typ, body := fc.readMessage()
	if typ != 'p' {
		fc.t.Fatalf("faketest: expected PasswordMessage, got %q", typ)
	}
	return string(body[:len(body)-1])
}

// SendAuthOK writes AuthenticationOk, a minimal ParameterStatus set,
// BackendKeyData, and ReadyForQuery(Idle) — the full tail of a
// successful handshake.
func (fc *Conn) SendAuthOK() {
	fc.writeTyped('R', u32(0))
	fc.writeTyped('S', cstrPair("server_version", "16.0"))
	fc.writeTyped('S', cstrPair("client_encoding", "UTF8"))
	fc.writeTyped('K', append(u32(4242), u32(99)...))
	fc.writeTyped('Z', []byte{'I'})
}

// SendAuthCleartext writes AuthenticationCleartextPassword (kind 3).
func (fc *Conn) SendAuthCleartext() {
	fc.writeTyped('R', u32(3))
}

// SendAuthMD5 writes AuthenticationMD5Password (kind 5) with salt.
func (fc *Conn) SendAuthMD5(salt [4]byte) {
	fc.writeTyped('R', append(u32(5), salt[:]...))
}

// ExpectSimpleQuery reads one simple Query ('Q') message and returns its
// SQL text, used to answer the bootstrap pg_catalog.pg_type load.
func (fc *Conn) ExpectSimpleQuery() string {
	typ, body := fc.readMessage()
	if typ != 'Q' {
		fc.t.Fatalf("faketest: expected Query, got %q", typ)
	}
	return string(body[:len(body)-1])
}

// SendEmptyCatalog answers a simple-query catalog bootstrap with a
// RowDescription of the three expected columns and zero rows, enough for
// protocol.Conn.loadCatalog to succeed with nothing but the builtin
// scalar codecs registered.
func (fc *Conn) SendEmptyCatalog() {
	fc.SendRowDescription([]string{"typname", "oid", "typarray"})
	fc.writeTyped('C', cstr("SELECT 0"))
	fc.writeTyped('Z', []byte{'I'})
}

// SendRowDescription writes a RowDescription naming the given columns as
// opaque text-format fields (OID 25, i.e. OIDText) — sufficient for tests
// that only care about row shape, not exact typing.
func (fc *Conn) SendRowDescription(names []string) {
	var body []byte
	body = append(body, u16(len(names))...)
	for _, name := range names {
		body = append(body, name...)
		body = append(body, 0)
		body = append(body, u32(0)...)  // table OID
		body = append(body, i16(0)...)  // column attr
		body = append(body, u32(25)...) // type OID (text)
		body = append(body, i16(-1)...) // type len
		body = append(body, i32(-1)...) // type mod
		body = append(body, i16(0)...)  // format
	}
	fc.writeTyped('T', body)
}

// SendDataRow writes a DataRow carrying the given text-encoded columns;
// a nil entry encodes as SQL NULL.
func (fc *Conn) SendDataRow(cols ...[]byte) {
	var body []byte
	body = append(body, u16(len(cols))...)
	for _, c := range cols {
		if c == nil {
			body = append(body, i32(-1)...)
			continue
		}
		body = append(body, i32(len(c))...)
		body = append(body, c...)
	}
	fc.writeTyped('D', body)
}

// SendCommandComplete writes CommandComplete with the given tag.
func (fc *Conn) SendCommandComplete(tag string) {
	fc.writeTyped('C', cstr(tag))
}

// SendReadyForQuery writes ReadyForQuery with the given status byte
// ('I' idle, 'T' in-transaction, 'E' failed-transaction).
func (fc *Conn) SendReadyForQuery(status byte) {
	fc.writeTyped('Z', []byte{status})
}

// ExpectParse reads a Parse ('P') message and returns the statement name
// and SQL text.
func (fc *Conn) ExpectParse() (stmtName, sql string) {
	typ, body := fc.readMessage()
	if typ != 'P' {
		fc.t.Fatalf("faketest: expected Parse, got %q", typ)
	}
	nameEnd := indexZero(body)
	stmtName = string(body[:nameEnd])
	rest := body[nameEnd+1:]
	sqlEnd := indexZero(rest)
	sql = string(rest[:sqlEnd])
	return stmtName, sql
}

// SendParseComplete writes ParseComplete.
func (fc *Conn) SendParseComplete() { fc.writeTyped('1', nil) }

// SendParameterDescription writes ParameterDescription for the given
// OIDs.
func (fc *Conn) SendParameterDescription(oids []uint32) {
	var body []byte
	body = append(body, u16(len(oids))...)
	for _, oid := range oids {
		body = append(body, u32(oid)...)
	}
	fc.writeTyped('t', body)
}

// SendNoData writes NoData.
func (fc *Conn) SendNoData() { fc.writeTyped('n', nil) }

// SendBindComplete writes BindComplete.
func (fc *Conn) SendBindComplete() { fc.writeTyped('2', nil) }

// SendCloseComplete writes CloseComplete.
func (fc *Conn) SendCloseComplete() { fc.writeTyped('3', nil) }

// SendErrorResponse writes an ErrorResponse with Severity/Code/Message.
func (fc *Conn) SendErrorResponse(severity, code, message string) {
	var body []byte
	body = append(body, 'S')
	body = append(body, severity...)
	body = append(body, 0)
	body = append(body, 'C')
	body = append(body, code...)
	body = append(body, 0)
	body = append(body, 'M')
	body = append(body, message...)
	body = append(body, 0)
	body = append(body, 0)
	fc.writeTyped('E', body)
}

// SendNoticeResponse writes a NoticeResponse with Severity/Message set.
func (fc *Conn) SendNoticeResponse(severity, message string) {
	var body []byte
	body = append(body, 'S')
	body = append(body, severity...)
	body = append(body, 0)
	body = append(body, 'M')
	body = append(body, message...)
	body = append(body, 0)
	body = append(body, 0)
	fc.writeTyped('N', body)
}

// DrainUntilSync reads and discards messages until it sees Sync ('S'),
// for tests that don't care about every intermediate message.
func (fc *Conn) DrainUntilSync() {
	for {
		typ, _ := fc.readMessage()
		if typ == 'S' {
			return
		}
	}
}

// DrainN reads and discards exactly n messages, for round trips (like a
// cursor's Bind+Describe+Flush) that never send a Sync to anchor on.
func (fc *Conn) DrainN(n int) {
	for i := 0; i < n; i++ {
		fc.readMessage()
	}
}

func (fc *Conn) readMessage() (typ byte, body []byte) {
	fc.t.Helper()
	hdr := fc.readN(5)
	typ = hdr[0]
	n := int(binary.BigEndian.Uint32(hdr[1:5]))
	body = fc.readN(n - 4)
	return typ, body
}

func (fc *Conn) readN(n int) []byte {
	fc.t.Helper()
	for len(fc.buf) < n {
		tmp := make([]byte, 4096)
		k, err := fc.c.Read(tmp)
		if err != nil {
			fc.t.Fatalf("faketest: read: %v", err)
		}
		fc.buf = append(fc.buf, tmp[:k]...)
	}
	out := fc.buf[:n]
	fc.buf = fc.buf[n:]
	return out
}

func (fc *Conn) writeTyped(typ byte, body []byte) {
	fc.t.Helper()
	out := make([]byte, 0, 5+len(body))
	out = append(out, typ)
	out = append(out, u32(uint32(4+len(body)))...)
	out = append(out, body...)
	if _, err := fc.c.Write(out); err != nil {
		fc.t.Fatalf("faketest: write: %v", err)
	}
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

func cstr(s string) []byte { return append([]byte(s), 0) }

func cstrPair(k, v string) []byte {
	return append(cstr(k), cstr(v)...)
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u16(v int) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func i16(v int16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func i32(v int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(int32(v)))
	return b
}
