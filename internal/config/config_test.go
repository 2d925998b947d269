package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loadForTest(t *testing.T, configFile string) (*Config, error) {
	t.Helper()
	t.Setenv("PORT", "")
	return Load(Options{ConfigFile: configFile, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadForTest(t, "")
	require.NoError(t, err)

	require.Equal(t, ":5001", cfg.Server.ListenAddr)
	require.Equal(t, 45*time.Second, cfg.Providers.AttemptTimeout)
	require.Equal(t, []string{"HUGGING_FACE_TOKEN", "HF_TOKEN"}, cfg.Providers.CredentialEnv)
	require.Len(t, cfg.Providers.Chain, 3)
	require.Equal(t, "Stable Diffusion XL Base", cfg.Providers.Chain[0].Name)
	require.Equal(t, "Flux Dev", cfg.Providers.Chain[1].Name)
	require.Equal(t, "Stable Diffusion v1.5", cfg.Providers.Chain[2].Name)
	for _, entry := range cfg.Providers.Chain {
		require.Equal(t, "hf-inference", entry.Format)
		require.True(t, entry.IsEnabled())
	}
	require.Equal(t, "https://source.unsplash.com/512x512/?{query}", cfg.Fallback.URLTemplate)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	require.False(t, cfg.Redis.Enabled())
	require.Equal(t, 30*time.Minute, cfg.Idempotency.TTL)
	require.Equal(t, 1024, cfg.Idempotency.MemoryEntries)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadHonorsPortAndPrefixedEnv(t *testing.T) {
	t.Setenv("IMAGEGEN_PROVIDERS_ATTEMPT_TIMEOUT", "10s")
	t.Setenv("IMAGEGEN_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("IMAGEGEN_LOGGING_FORMAT", "TEXT")

	cfg, err := loadForTest(t, "")
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Providers.AttemptTimeout)
	require.True(t, cfg.Redis.Enabled())
	require.Equal(t, "text", cfg.Logging.Format)

	t.Setenv("PORT", "8099")
	cfg, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)
	require.Equal(t, ":8099", cfg.Server.ListenAddr)
}

func TestLoadReadsChainFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagegen.yaml")
	body := `
providers:
  attempt_timeout: 20s
  chain:
    - name: Primary
      endpoint: https://inference.example.com/models/a
    - name: Disabled
      endpoint: https://inference.example.com/models/b
      enabled: false
fallback:
  url_template: https://photos.example.com/search/{query}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := loadForTest(t, path)
	require.NoError(t, err)
	require.Equal(t, 20*time.Second, cfg.Providers.AttemptTimeout)
	require.Len(t, cfg.Providers.Chain, 2)
	require.Equal(t, "Primary", cfg.Providers.Chain[0].Name)
	require.Equal(t, "hf-inference", cfg.Providers.Chain[0].Format)
	require.False(t, cfg.Providers.Chain[1].IsEnabled())
	require.Equal(t, "https://photos.example.com/search/{query}", cfg.Fallback.URLTemplate)
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{ListenAddr: ":5001"},
		Providers: ProviderConfig{
			AttemptTimeout: 0,
			Chain: []ProviderEntry{
				{Name: "", Endpoint: "not a url"},
			},
		},
		Fallback: FallbackConfig{URLTemplate: "https://photos.example.com/"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "providers.attempt_timeout")
	require.Contains(t, msg, "providers.chain[0].name")
	require.Contains(t, msg, "providers.chain[0].endpoint")
	require.Contains(t, msg, `"url" check`)
	require.Contains(t, msg, "fallback.url_template")
}

func TestValidateFallbackTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{name: "query string", template: "https://source.unsplash.com/512x512/?{query}"},
		{name: "path", template: "https://photos.example.com/search/{query}"},
		{name: "empty", template: "", wantErr: true},
		{name: "missing placeholder", template: "https://photos.example.com/", wantErr: true},
		{name: "two placeholders", template: "https://photos.example.com/{query}/{query}", wantErr: true},
		{name: "relative", template: "/search/{query}", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFallbackTemplate(tt.template)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestResolveCredentialPriority(t *testing.T) {
	env := map[string]string{"HF_TOKEN": "secondary"}
	lookup := func(name string) string { return env[name] }
	names := []string{"HUGGING_FACE_TOKEN", "HF_TOKEN"}

	cred := ResolveCredential(names, lookup)
	require.True(t, cred.Present())
	require.Equal(t, "secondary", cred.Token)
	require.Equal(t, "HF_TOKEN", cred.Source)

	env["HUGGING_FACE_TOKEN"] = "primary"
	cred = ResolveCredential(names, lookup)
	require.Equal(t, "primary", cred.Token)
	require.Equal(t, "HUGGING_FACE_TOKEN", cred.Source)

	cred = ResolveCredential(names, func(string) string { return "  " })
	require.False(t, cred.Present())
}
