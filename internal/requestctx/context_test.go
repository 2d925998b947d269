package requestctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerAddsRequestMetadata(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithContext(context.Background(), &Context{RequestID: "req-123", ClientIP: "10.0.0.1"})
	rc, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "req-123", rc.RequestID)

	Logger(ctx, base).Info("generation complete")
	require.Contains(t, buf.String(), "request_id=req-123")
	require.Contains(t, buf.String(), "client_ip=10.0.0.1")
	require.NotContains(t, buf.String(), "idempotency_key")
}

func TestLoggerWithoutMetadataReturnsBase(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	require.Same(t, base, Logger(context.Background(), base))

	_, ok := FromContext(nil)
	require.False(t, ok)

	ctx := WithContext(context.Background(), nil)
	_, ok = FromContext(ctx)
	require.False(t, ok)
}
