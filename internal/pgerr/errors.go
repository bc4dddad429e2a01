// Package pgerr holds the error taxonomy shared by the protocol engine and
// the codec registry, so both layers raise the same *Error shape instead of
// ad-hoc fmt.Errorf strings a caller would have to pattern-match.
package pgerr

import "fmt"

// Kind classifies the failure modes a caller of this driver can observe.
type Kind int

const (
	// KindInterface covers caller misuse: wrong owner, mixing manual and
	// scoped transactions, use-after-close.
	KindInterface Kind = iota
	// KindProgramming covers bad query input: NUL bytes in SQL text, ragged
	// or mixed-depth arrays passed to the codec, a cursor opened outside a
	// transaction.
	KindProgramming
	// KindDatabase wraps a server ErrorResponse.
	KindDatabase
	// KindData covers encode/decode failures, including numeric overflow.
	KindData
	// KindOperational covers broken connections, unexpected EOF, dial failures.
	KindOperational
	// KindInternal covers protocol violations: unexpected message type,
	// unknown authentication method.
	KindInternal
	// KindTimeout covers pool acquire timeouts.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface-error"
	case KindProgramming:
		return "programming-error"
	case KindDatabase:
		return "database-error"
	case KindData:
		return "data-error"
	case KindOperational:
		return "operational-error"
	case KindInternal:
		return "internal-error"
	case KindTimeout:
		return "timeout-error"
	default:
		return "unknown-error"
	}
}

// Error is the error type returned by every exported operation in this
// module. Fields carries the parsed ErrorResponse/NoticeResponse field map
// (S, C, M, D, H, P, ...) when Kind is KindDatabase; it is nil otherwise.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[byte]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Fields != nil {
		if code := e.Fields[FieldSQLState]; code != "" {
			return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Kind, e.Message, code)
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == kind
}

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Kind-tagged error around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Database builds a KindDatabase error from a decoded ErrorResponse field
// map. When sql is non-empty the §7 "Error executing query: <sql>" prefix
// used by the simple-query path is applied.
func Database(fields map[byte]string, sql string) *Error {
	msg := fields[FieldMessage]
	if sql != "" {
		msg = fmt.Sprintf("Error executing query: %s: %s", sql, msg)
	}
	return &Error{Kind: KindDatabase, Message: msg, Fields: fields}
}

// Field codes from PostgreSQL's ErrorResponse/NoticeResponse field table.
const (
	FieldSeverity   byte = 'S'
	FieldSQLState   byte = 'C'
	FieldMessage    byte = 'M'
	FieldDetail     byte = 'D'
	FieldHint       byte = 'H'
	FieldPosition   byte = 'P'
	FieldWhere      byte = 'W'
	FieldSchemaName byte = 's'
	FieldTableName  byte = 't'
	FieldColumnName byte = 'c'
	FieldConstraint byte = 'n'
)
