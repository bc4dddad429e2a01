package protocol

import "github.com/pgwire/pgwire/internal/pgerr"

// Re-exported so callers of this package never need to import internal/pgerr
// directly; protocol and codec both raise pgerr.Error under the hood.
type Kind = pgerr.Kind
type Error = pgerr.Error

const (
	KindInterface   = pgerr.KindInterface
	KindProgramming = pgerr.KindProgramming
	KindDatabase    = pgerr.KindDatabase
	KindData        = pgerr.KindData
	KindOperational = pgerr.KindOperational
	KindInternal    = pgerr.KindInternal
	KindTimeout     = pgerr.KindTimeout
)

var (
	Is       = pgerr.Is
	newErr   = pgerr.New
	wrapErr  = pgerr.Wrap
	dbErr    = pgerr.Database
)

const (
	FieldSeverity = pgerr.FieldSeverity
	FieldSQLState = pgerr.FieldSQLState
	FieldMessage  = pgerr.FieldMessage
	FieldDetail   = pgerr.FieldDetail
	FieldHint     = pgerr.FieldHint
	FieldPosition = pgerr.FieldPosition
)

func databaseError(fields map[byte]string, sql string) *Error {
	return dbErr(fields, sql)
}
