package logger

import "context"

// ctxKey is unexported so no other package can collide with the LogContext slot.
type ctxKey struct{}

// LogContext carries per-request identity for log lines: which operation is
// running, for which client, under which trace.
type LogContext struct {
	Op         string // request operation: LOGIN, SEND_MSG, ...
	ClientIP   string // remote address without the port
	ClientUUID string // session UUID announced by the client
	Username   string // account bound to the session, if any
	TraceID    string // OpenTelemetry trace id
	SpanID     string // OpenTelemetry span id
}

// NewLogContext starts a LogContext for a client connection.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{ClientIP: clientIP}
}

// WithContext stores lc in ctx for the Ctx logging functions to pick up.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil if there is none.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(ctxKey{}).(*LogContext)
	return lc
}

// WithOp returns a copy of lc with the operation name set.
func (lc *LogContext) WithOp(op string) *LogContext {
	cp := lc.copy()
	if cp != nil {
		cp.Op = op
	}
	return cp
}

// WithUsername returns a copy of lc with the bound account set.
func (lc *LogContext) WithUsername(username string) *LogContext {
	cp := lc.copy()
	if cp != nil {
		cp.Username = username
	}
	return cp
}

func (lc *LogContext) copy() *LogContext {
	if lc == nil {
		return nil
	}
	cp := *lc
	return &cp
}
