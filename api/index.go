// Package api exposes the gateway as a single serverless HTTP handler.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/ncecere/imagegen_gateway/internal/app"
	"github.com/ncecere/imagegen_gateway/internal/config"
	"github.com/ncecere/imagegen_gateway/internal/httpserver"
	"github.com/ncecere/imagegen_gateway/internal/observability"
	"github.com/ncecere/imagegen_gateway/internal/redisclient"
)

var (
	initOnce sync.Once
	handler  http.HandlerFunc
	initErr  error
)

// Handler serves every gateway route. The container is built on first use
// and reused for the lifetime of the process.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		handler, initErr = build(context.Background())
	})
	if initErr != nil {
		slog.Default().Error("gateway init failed", slog.String("error", initErr.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"gateway unavailable"}`))
		return
	}
	handler(w, r)
}

func build(ctx context.Context) (http.HandlerFunc, error) {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	container, err := app.NewContainer(ctx, cfg, redisclient.New(cfg.Redis), app.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	server, err := httpserver.New(container)
	if err != nil {
		return nil, err
	}
	return adaptor.FiberApp(server.App()), nil
}
