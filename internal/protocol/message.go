package protocol

// Message is the common interface every protocol frame implements. Type
// returns the wire type byte ('Q', 'P', 'Z', ...), or 0 for the two
// messages that omit a type byte (StartupMessage, SSLRequest).
type Message interface {
	Type() byte
}

// --- client -> server -------------------------------------------------

// StartupMessage has no type byte; Version is always 0x00030000 (v3.0).
type StartupMessage struct {
	Version uint32
	Params  []KV // ordered key/value pairs: user, database, ...
}

func (StartupMessage) Type() byte { return 0 }

// KV is an ordered key/value pair, used by StartupMessage where parameter
// order is part of the contract (and is observable by some servers).
type KV struct{ Key, Value string }

// SSLRequest has no type byte; length is always 8, code is always 80877103.
type SSLRequest struct{}

func (SSLRequest) Type() byte { return 0 }

// PasswordMessage carries a cleartext password, an MD5 digest string, or a
// raw SASL response, depending on what authentication round this is.
type PasswordMessage struct{ Password []byte }

func (PasswordMessage) Type() byte { return 'p' }

// SASLInitialResponse is a 'p' message carrying the SASL mechanism name
// followed by the length-prefixed client-first-message. It shares the wire
// type byte with PasswordMessage (both are 'p'); kept as a separate Go type
// because its payload shape differs.
type SASLInitialResponse struct {
	Mechanism string
	Data      []byte
}

func (SASLInitialResponse) Type() byte { return 'p' }

// SASLResponse is a 'p' message carrying a raw SASL response.
type SASLResponse struct{ Data []byte }

func (SASLResponse) Type() byte { return 'p' }

// Query is the simple-query protocol's sole client message.
type Query struct{ SQL string }

func (Query) Type() byte { return 'Q' }

// Parse names a prepared statement, its SQL text, and (optionally) its
// parameter type OIDs. An empty ParamOIDs lets the server infer types.
type Parse struct {
	StmtName string
	SQL      string
	ParamOIDs []uint32
}

func (Parse) Type() byte { return 'P' }

// Bind creates a portal from a prepared statement.
type Bind struct {
	Portal        string
	StmtName      string
	ParamFormats  []int16 // 0=text, 1=binary; len 0 = all text, len 1 = all same, else per-param
	Params        [][]byte // nil element = SQL NULL
	ResultFormats []int16
}

func (Bind) Type() byte { return 'B' }

// DescribeKind selects whether Describe targets a prepared statement or a
// portal.
type DescribeKind byte

const (
	DescribeStatement DescribeKind = 'S'
	DescribePortal    DescribeKind = 'P'
)

// Describe requests a ParameterDescription/RowDescription pair for a
// statement, or a RowDescription/NoData for a portal.
type Describe struct {
	Kind DescribeKind
	Name string
}

func (Describe) Type() byte { return 'D' }

// Execute runs a bound portal. MaxRows = 0 means "no limit".
type Execute struct {
	Portal  string
	MaxRows int32
}

func (Execute) Type() byte { return 'E' }

// Sync ends an extended-query round trip, asking the server for
// ReadyForQuery regardless of errors encountered so far.
type Sync struct{}

func (Sync) Type() byte { return 'S' }

// Flush asks the server to deliver any pending response data without
// ending the extended-query round trip (used by Cursor so the portal can
// be re-Executed without a Sync in between).
type Flush struct{}

func (Flush) Type() byte { return 'H' }

// Terminate politely ends the session.
type Terminate struct{}

func (Terminate) Type() byte { return 'X' }

// CloseKind mirrors DescribeKind for the Close message.
type CloseKind byte

const (
	CloseStatement CloseKind = 'S'
	ClosePortal    CloseKind = 'P'
)

// Close releases a prepared statement or portal on the server.
type Close struct {
	Kind CloseKind
	Name string
}

func (Close) Type() byte { return 'C' }

// --- server -> client ---------------------------------------------------

// AuthKind discriminates the AuthenticationX sub-messages, all of which
// share wire type 'R'.
type AuthKind int32

const (
	AuthOk                AuthKind = 0
	AuthKerberosV5         AuthKind = 2
	AuthCleartextPassword AuthKind = 3
	AuthMD5Password       AuthKind = 5
	AuthSCMCredential     AuthKind = 6
	AuthGSS               AuthKind = 7
	AuthGSSContinue       AuthKind = 8
	AuthSSPI              AuthKind = 9
	AuthSASL              AuthKind = 10
	AuthSASLContinue      AuthKind = 11
	AuthSASLFinal         AuthKind = 12
)

// Authentication is the decoded form of every 'R' message.
type Authentication struct {
	Kind AuthKind
	Salt [4]byte // valid only when Kind == AuthMD5Password
	Data []byte  // SASL mechanism list (AuthSASL) or challenge/verifier bytes
}

func (Authentication) Type() byte { return 'R' }

// BackendKeyData carries the values needed to issue a CancelRequest.
type BackendKeyData struct {
	PID int32
	Key int32
}

func (BackendKeyData) Type() byte { return 'K' }

// ParameterStatus reports a GUC value the server wants the client to know.
type ParameterStatus struct{ Name, Value string }

func (ParameterStatus) Type() byte { return 'S' }

// TxStatus is the one-byte transaction indicator carried by ReadyForQuery.
type TxStatus byte

const (
	TxIdle   TxStatus = 'I'
	TxInTx   TxStatus = 'T'
	TxError  TxStatus = 'E'
)

// ReadyForQuery marks the end of a request/response cycle.
type ReadyForQuery struct{ Status TxStatus }

func (ReadyForQuery) Type() byte { return 'Z' }

// FieldFormat selects the wire representation of a column or parameter.
type FieldFormat int16

const (
	FormatText   FieldFormat = 0
	FormatBinary FieldFormat = 1
)

// FieldDescription describes one RowDescription column.
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnAttr   int16
	TypeOID      uint32
	TypeLen      int16
	TypeMod      int32
	Format       FieldFormat
}

// RowDescription lists the columns of the rows about to follow.
type RowDescription struct{ Fields []FieldDescription }

func (RowDescription) Type() byte { return 'T' }

// DataRow is one row of column values; a nil element represents SQL NULL
// (wire length -1).
type DataRow struct{ Columns [][]byte }

func (DataRow) Type() byte { return 'D' }

// CommandComplete carries the server's completion tag, e.g. "SELECT 3".
type CommandComplete struct{ Tag string }

func (CommandComplete) Type() byte { return 'C' }

// EmptyQueryResponse signals the simple-query string contained no commands.
type EmptyQueryResponse struct{}

func (EmptyQueryResponse) Type() byte { return 'I' }

// ParseComplete acknowledges a Parse message.
type ParseComplete struct{}

func (ParseComplete) Type() byte { return '1' }

// BindComplete acknowledges a Bind message.
type BindComplete struct{}

func (BindComplete) Type() byte { return '2' }

// CloseComplete acknowledges a Close message.
type CloseComplete struct{}

func (CloseComplete) Type() byte { return '3' }

// NoData is returned by Describe(portal) when the statement returns no rows.
type NoData struct{}

func (NoData) Type() byte { return 'n' }

// PortalSuspended is returned by Execute when MaxRows was reached before
// the portal was exhausted.
type PortalSuspended struct{}

func (PortalSuspended) Type() byte { return 's' }

// ParameterDescription lists the inferred/declared OIDs of a statement's
// placeholders, in response to Describe(statement).
type ParameterDescription struct{ ParamOIDs []uint32 }

func (ParameterDescription) Type() byte { return 't' }

// ErrorResponse and NoticeResponse share the same field-list wire shape: a
// sequence of (byte code, C-string value) pairs terminated by a zero byte.
type ErrorResponse struct{ Fields map[byte]string }

func (ErrorResponse) Type() byte { return 'E' }

type NoticeResponse struct{ Fields map[byte]string }

func (NoticeResponse) Type() byte { return 'N' }

// NotificationResponse carries a LISTEN/NOTIFY payload. Decoding is
// supported (the frame must still be parsed off the wire so the stream
// stays in sync) even though LISTEN/NOTIFY streaming itself is a
// documented non-goal of this driver.
type NotificationResponse struct {
	PID     int32
	Channel string
	Payload string
}

func (NotificationResponse) Type() byte { return 'A' }
