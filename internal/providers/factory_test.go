package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/imagegen_gateway/internal/config"
)

func TestFactoryBuildPreservesOrderAndSkipsDisabled(t *testing.T) {
	disabled := false
	entries := []config.ProviderEntry{
		{Name: "first", Endpoint: "https://a.example.com"},
		{Name: "off", Endpoint: "https://b.example.com", Enabled: &disabled},
		{Name: "second", Endpoint: "https://c.example.com", Format: FormatHFInference},
	}

	chain, err := NewFactory().Build(entries)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, Names(chain))
	require.Equal(t, FormatHFInference, chain[0].Format)

	body, err := chain[0].BuildBody("a red fox")
	require.NoError(t, err)
	require.JSONEq(t, `{"inputs":"a red fox","options":{"wait_for_model":true}}`, string(body))
}

func TestFactoryBuildRejectsUnknownFormat(t *testing.T) {
	_, err := NewFactory().Build([]config.ProviderEntry{{Name: "x", Endpoint: "https://x.example.com", Format: "grpc"}})
	require.ErrorContains(t, err, `format "grpc" unsupported`)
}

func TestFactoryRegisterOverridesFormat(t *testing.T) {
	factory := NewFactory()
	factory.Register("custom", func(prompt string) ([]byte, error) {
		return json.Marshal(map[string]string{"prompt": prompt})
	})

	chain, err := factory.Build([]config.ProviderEntry{{Name: "c", Endpoint: "https://c.example.com", Format: "custom"}})
	require.NoError(t, err)
	body, err := chain[0].BuildBody("hi")
	require.NoError(t, err)
	require.JSONEq(t, `{"prompt":"hi"}`, string(body))
}

func TestDefaultDefinitionsIncludeHFInference(t *testing.T) {
	defs := DefaultDefinitions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	require.Contains(t, names, FormatHFInference)
}
