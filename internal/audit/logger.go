package audit

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// Event describes one vault operation. It carries identifiers only.
// Plaintext and ciphertext must NEVER be placed here.
type Event struct {
	Op      string
	ID      int64
	Service string
	Err     error
}

// Outcome returns "ok" or "error".
func (e Event) Outcome() string {
	if e.Err != nil {
		return "error"
	}
	return "ok"
}

// Logger writes audit events as structured log lines.
type Logger struct {
	log zerolog.Logger
}

// NewLogger creates a Logger writing JSON lines to w.
func NewLogger(w io.Writer) *Logger {
	return FromZerolog(zerolog.New(w).With().Timestamp().Logger())
}

// FromZerolog creates a Logger on top of an existing zerolog logger.
func FromZerolog(l zerolog.Logger) *Logger {
	return &Logger{log: l.With().Bool("audit", true).Logger()}
}

// Record writes e. Failed operations are logged at warn level.
func (l *Logger) Record(ctx context.Context, e Event) {
	var ev *zerolog.Event
	if e.Err != nil {
		ev = l.log.Warn().Err(e.Err)
	} else {
		ev = l.log.Info()
	}
	if id := RequestID(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	if e.ID != 0 {
		ev = ev.Int64("id", e.ID)
	}
	if e.Service != "" {
		ev = ev.Str("service", e.Service)
	}
	ev.Str("op", e.Op).Str("outcome", e.Outcome()).Msg("vault operation")
}

type contextKey struct{}

// WithRequestID attaches a request ID to ctx so audit events can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// RequestID returns the request ID attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
