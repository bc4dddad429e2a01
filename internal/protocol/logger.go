package protocol

import (
	"log/slog"
	"time"
)

// Logger is the external collaborator the engine hands notice strings and
// soft warnings to. It is never used for fatal errors — those are always
// returned, never logged and swallowed.
type Logger interface {
	Warn(msg string, args ...any)
}

// Metrics is the external collaborator the engine reports query outcomes,
// notices, and framed byte counts to. A Conn with no Metrics configured
// skips all of these calls. internal/metrics.Collector satisfies this
// interface without protocol importing it directly.
type Metrics interface {
	QueryCompleted(kind string, d time.Duration, err error)
	NoticeReceived()
	BytesFramed(direction string, n int)
}

// slogLogger adapts log/slog.Logger to Logger, matching the teacher's own
// pervasive use of log/slog (internal/pool, internal/health) rather than
// reaching for a third-party logging library the pack doesn't otherwise use
// for this concern.
type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Warn(msg string, args ...any) { s.l.Warn(msg, args...) }

// NewSlogLogger wraps l as a Logger. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}
