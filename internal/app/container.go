package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/imagegen_gateway/internal/cache"
	"github.com/ncecere/imagegen_gateway/internal/config"
	"github.com/ncecere/imagegen_gateway/internal/dispatcher"
	"github.com/ncecere/imagegen_gateway/internal/health"
	"github.com/ncecere/imagegen_gateway/internal/limits"
	"github.com/ncecere/imagegen_gateway/internal/observability"
	"github.com/ncecere/imagegen_gateway/internal/providers"
)

// Container aggregates runtime dependencies for handlers and entry points.
type Container struct {
	Config        *config.Config
	Redis         *redis.Client
	Credential    config.Credential
	Chain         []providers.Spec
	Dispatcher    *dispatcher.Dispatcher
	Tracker       *health.Tracker
	RateLimiter   *limits.RateLimiter
	DefaultLimit  limits.LimitConfig
	Idempotency   cache.Store
	KeyLock       *cache.KeyLock
	Observability *observability.Provider
	Logger        *slog.Logger
}

// Option customizes container construction.
type Option func(*containerOptions)

type containerOptions struct {
	httpClient *http.Client
	lookupEnv  func(string) string
	logger     *slog.Logger
}

// WithHTTPClient sets the client used for provider attempts.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *containerOptions) { o.httpClient = hc }
}

// WithCredentialLookup replaces os.Getenv when resolving the provider token.
func WithCredentialLookup(lookup func(string) string) Option {
	return func(o *containerOptions) { o.lookupEnv = lookup }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// NewContainer builds a dependency container from the provided primitives.
// redisClient may be nil; Redis-backed features are then disabled.
func NewContainer(ctx context.Context, cfg *config.Config, redisClient *redis.Client, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	options := containerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	chain, err := providers.NewFactory().Build(cfg.Providers.Chain)
	if err != nil {
		return nil, fmt.Errorf("build provider chain: %w", err)
	}
	photoSearch, err := providers.NewPhotoSearch(cfg.Fallback.URLTemplate)
	if err != nil {
		return nil, err
	}

	credential := config.ResolveCredential(cfg.Providers.CredentialEnv, options.lookupEnv)

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	tracker := health.NewTracker(chain)
	disp := dispatcher.New(dispatcher.Options{
		Chain:       chain,
		Attempter:   providers.NewClient(options.httpClient, cfg.Providers.AttemptTimeout),
		PhotoSearch: photoSearch,
		Credential:  credential,
		Logger:      logger,
		Metrics:     obsProvider,
		Tracker:     tracker,
	})

	container := &Container{
		Config:        cfg,
		Redis:         redisClient,
		Credential:    credential,
		Chain:         chain,
		Dispatcher:    disp,
		Tracker:       tracker,
		Observability: obsProvider,
		Logger:        logger,
		DefaultLimit: limits.LimitConfig{
			RequestsPerMinute: cfg.RateLimits.RequestsPerMinute,
			ParallelRequests:  cfg.RateLimits.ParallelRequests,
		},
	}
	if redisClient != nil {
		container.RateLimiter = limits.NewRateLimiter(redisClient)
		container.Idempotency = cache.NewIdempotencyCache(redisClient, cfg.Idempotency.TTL)
		container.KeyLock = cache.NewKeyLock(redisClient, cfg.Providers.AttemptTimeout*time.Duration(len(chain)+1))
	} else {
		memory, err := cache.NewMemoryIdempotency(cfg.Idempotency.MemoryEntries, cfg.Idempotency.TTL)
		if err != nil {
			return nil, fmt.Errorf("init idempotency cache: %w", err)
		}
		container.Idempotency = memory
	}

	if credential.Present() {
		logger.Info("ai generation enabled",
			slog.String("credential_source", credential.Source),
			slog.Any("providers", providers.Names(chain)),
		)
	} else {
		logger.Warn("ai generation disabled: no credential configured, photo search only",
			slog.Any("credential_env", cfg.Providers.CredentialEnv),
		)
	}

	return container, nil
}

// Shutdown flushes telemetry exporters.
func (c *Container) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Observability.Shutdown(ctx)
}
