package requestctx

import (
	"context"
	"log/slog"
	"time"
)

type contextKey string

// Key is the typed context key used for storing the request Context.
var Key contextKey = "imagegen-gateway/requestctx"

// Context captures per-request metadata that downstream logging attaches to
// every line for a generation.
type Context struct {
	RequestID      string
	ClientIP       string
	IdempotencyKey string
	ReceivedAt     time.Time
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok && rc != nil
}

// Logger returns logger annotated with the request metadata found in ctx.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	rc, ok := FromContext(ctx)
	if !ok {
		return logger
	}
	attrs := make([]any, 0, 3)
	if rc.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", rc.RequestID))
	}
	if rc.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", rc.ClientIP))
	}
	if rc.IdempotencyKey != "" {
		attrs = append(attrs, slog.String("idempotency_key", rc.IdempotencyKey))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
