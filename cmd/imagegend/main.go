package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ncecere/imagegen_gateway/internal/app"
	"github.com/ncecere/imagegen_gateway/internal/config"
	"github.com/ncecere/imagegen_gateway/internal/httpserver"
	"github.com/ncecere/imagegen_gateway/internal/observability"
	"github.com/ncecere/imagegen_gateway/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	redisClient := redisclient.New(cfg.Redis)
	if err := redisclient.Ping(ctx, redisClient); err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	container, err := app.NewContainer(ctx, cfg, redisClient, app.WithLogger(logger))
	if err != nil {
		log.Fatalf("build container: %v", err)
	}

	server, err := httpserver.New(container)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	logger.Info("imagegen gateway listening",
		slog.String("addr", cfg.Server.ListenAddr),
		slog.Bool("ai_enabled", container.Dispatcher.AIEnabled()),
		slog.String("redis", redisclient.Status(ctx, redisClient)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Listen(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.GracefulShutdownDelay)
		defer cancel()
		return container.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
