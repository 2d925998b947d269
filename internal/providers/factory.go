package providers

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ncecere/imagegen_gateway/internal/config"
)

// Factory builds the provider chain from configuration using a registry of
// request formats.
type Factory struct {
	builders map[string]BodyBuilder
}

// NewFactory creates a factory with the default format registry.
func NewFactory() *Factory {
	return &Factory{builders: cloneDefaultBuilders()}
}

// Register allows tests or callers to override format builders.
func (f *Factory) Register(format string, builder BodyBuilder) {
	if f.builders == nil {
		f.builders = make(map[string]BodyBuilder)
	}
	f.builders[format] = builder
}

// Build converts enabled chain entries into specs, preserving their order.
func (f *Factory) Build(entries []config.ProviderEntry) ([]Spec, error) {
	enabled := lo.Filter(entries, func(entry config.ProviderEntry, _ int) bool {
		return entry.IsEnabled()
	})

	chain := make([]Spec, 0, len(enabled))
	for _, entry := range enabled {
		format := entry.Format
		if format == "" {
			format = FormatHFInference
		}
		builder, ok := f.builders[format]
		if !ok {
			return nil, fmt.Errorf("provider %q: format %q unsupported", entry.Name, format)
		}
		chain = append(chain, Spec{
			Name:      entry.Name,
			Endpoint:  entry.Endpoint,
			Format:    format,
			BuildBody: builder,
		})
	}
	return chain, nil
}
