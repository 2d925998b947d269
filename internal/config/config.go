package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// QueryPlaceholder marks where the escaped prompt goes in the fallback URL template.
const QueryPlaceholder = "{query}"

// Config captures the runtime configuration for the image generation gateway.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Providers     ProviderConfig      `mapstructure:"providers"`
	Fallback      FallbackConfig      `mapstructure:"fallback"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

// ProviderConfig describes the ordered AI provider chain and how its
// credential is located.
type ProviderConfig struct {
	AttemptTimeout time.Duration   `mapstructure:"attempt_timeout"`
	CredentialEnv  []string        `mapstructure:"credential_env"`
	Chain          []ProviderEntry `mapstructure:"chain"`
}

// ProviderEntry is one position in the provider chain. Order in the slice is priority.
type ProviderEntry struct {
	Name     string `mapstructure:"name" validate:"required"`
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`
	Format   string `mapstructure:"format" validate:"required"`
	Enabled  *bool  `mapstructure:"enabled"`
}

func (e ProviderEntry) IsEnabled() bool {
	if e.Enabled == nil {
		return true
	}
	return *e.Enabled
}

type FallbackConfig struct {
	URLTemplate string `mapstructure:"url_template"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
	AllowMethods []string `mapstructure:"allow_methods"`
	AllowHeaders []string `mapstructure:"allow_headers"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled reports whether a Redis endpoint was configured. Redis-backed
// features are optional.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type IdempotencyConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	MemoryEntries int           `mapstructure:"memory_entries"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("IMAGEGEN_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("imagegen")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("IMAGEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// PORT is honoured for platforms that inject it.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.ListenAddr = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and normalizes the rest.
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		result = multierror.Append(result, fmt.Errorf("server.listen_addr must be provided"))
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 1
	}
	if c.Server.GracefulShutdownDelay <= 0 {
		c.Server.GracefulShutdownDelay = 5 * time.Second
	}

	if err := c.Providers.validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := ValidateFallbackTemplate(c.Fallback.URLTemplate); err != nil {
		result = multierror.Append(result, fmt.Errorf("fallback.url_template: %w", err))
	}

	c.CORS.AllowOrigins = normalizeStringSlice(c.CORS.AllowOrigins)
	c.CORS.AllowMethods = normalizeStringSlice(c.CORS.AllowMethods)
	c.CORS.AllowHeaders = normalizeStringSlice(c.CORS.AllowHeaders)
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}

	if c.Redis.PoolSize < 0 {
		result = multierror.Append(result, fmt.Errorf("redis.pool_size must be >= 0"))
	}
	if c.RateLimits.RequestsPerMinute < 0 {
		result = multierror.Append(result, fmt.Errorf("rate_limits.requests_per_minute must be >= 0"))
	}
	if c.RateLimits.ParallelRequests < 0 {
		result = multierror.Append(result, fmt.Errorf("rate_limits.parallel_requests must be >= 0"))
	}
	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = 30 * time.Minute
	}
	if c.Idempotency.MemoryEntries <= 0 {
		c.Idempotency.MemoryEntries = 1024
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.level must be debug, info, warn or error"))
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		result = multierror.Append(result, fmt.Errorf("logging.format must be json or text"))
	}

	return result.ErrorOrNil()
}

func (p *ProviderConfig) validate() error {
	var result *multierror.Error

	if p.AttemptTimeout <= 0 || p.AttemptTimeout > 5*time.Minute {
		result = multierror.Append(result, fmt.Errorf("providers.attempt_timeout must be between 0 and 5m"))
	}

	p.CredentialEnv = normalizeStringSlice(p.CredentialEnv)
	if len(p.CredentialEnv) == 0 {
		p.CredentialEnv = []string{"HUGGING_FACE_TOKEN", "HF_TOKEN"}
	}

	for i := range p.Chain {
		entry := &p.Chain[i]
		entry.Name = strings.TrimSpace(entry.Name)
		entry.Endpoint = strings.TrimSpace(entry.Endpoint)
		entry.Format = strings.ToLower(strings.TrimSpace(entry.Format))
		if entry.Format == "" {
			entry.Format = "hf-inference"
		}
		if err := structValidator.Struct(entry); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				result = multierror.Append(result, fmt.Errorf("providers.chain[%d]: %w", i, err))
				continue
			}
			for _, fe := range fieldErrs {
				result = multierror.Append(result, fmt.Errorf("providers.chain[%d].%s failed %q check", i, fe.Field(), fe.Tag()))
			}
		}
	}

	return result.ErrorOrNil()
}

var structValidator = newStructValidator()

// newStructValidator reports fields by their config key rather than Go name.
func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateFallbackTemplate checks that the template holds exactly one query
// placeholder and that the remainder forms an absolute URL.
func ValidateFallbackTemplate(template string) error {
	template = strings.TrimSpace(template)
	if template == "" {
		return fmt.Errorf("must be provided")
	}
	if n := strings.Count(template, QueryPlaceholder); n != 1 {
		return fmt.Errorf("must contain %s exactly once, found %d", QueryPlaceholder, n)
	}
	u, err := url.Parse(strings.Replace(template, QueryPlaceholder, "q", 1))
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

// Credential is the optional bearer token used for AI providers. An empty
// credential is a valid operating mode.
type Credential struct {
	Token  string
	Source string
}

// Present reports whether a token was found.
func (c Credential) Present() bool {
	return c.Token != ""
}

// ResolveCredential returns the first non-empty value among the named
// variables, in order. lookup defaults to os.Getenv.
func ResolveCredential(names []string, lookup func(string) string) Credential {
	if lookup == nil {
		lookup = os.Getenv
	}
	for _, name := range names {
		if token := strings.TrimSpace(lookup(name)); token != "" {
			return Credential{Token: token, Source: name}
		}
	}
	return Credential{}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":5001")
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "300s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("providers.attempt_timeout", "45s")
	v.SetDefault("providers.credential_env", []string{"HUGGING_FACE_TOKEN", "HF_TOKEN"})
	v.SetDefault("providers.chain", defaultChain())

	v.SetDefault("fallback.url_template", "https://source.unsplash.com/512x512/?"+QueryPlaceholder)

	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allow_headers", []string{"Content-Type", "Authorization", "Idempotency-Key"})

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rate_limits.requests_per_minute", 0)
	v.SetDefault("rate_limits.parallel_requests", 0)

	v.SetDefault("idempotency.ttl", "30m")
	v.SetDefault("idempotency.memory_entries", 1024)

	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func defaultChain() []map[string]any {
	return []map[string]any{
		{
			"name":     "Stable Diffusion XL Base",
			"endpoint": "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0",
			"format":   "hf-inference",
		},
		{
			"name":     "Flux Dev",
			"endpoint": "https://api-inference.huggingface.co/models/black-forest-labs/FLUX.1-dev",
			"format":   "hf-inference",
		},
		{
			"name":     "Stable Diffusion v1.5",
			"endpoint": "https://api-inference.huggingface.co/models/runwayml/stable-diffusion-v1-5",
			"format":   "hf-inference",
		},
	}
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
