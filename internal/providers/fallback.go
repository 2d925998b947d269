package providers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ncecere/imagegen_gateway/internal/config"
)

// PhotoSearch builds keyword photo-search URLs used when no AI provider
// produced an image.
type PhotoSearch struct {
	Template string
}

// NewPhotoSearch validates the template up front.
func NewPhotoSearch(template string) (PhotoSearch, error) {
	template = strings.TrimSpace(template)
	if err := config.ValidateFallbackTemplate(template); err != nil {
		return PhotoSearch{}, fmt.Errorf("photo search template: %w", err)
	}
	return PhotoSearch{Template: template}, nil
}

// URL substitutes the percent-encoded, trimmed prompt into the template.
func (p PhotoSearch) URL(prompt string) (string, error) {
	if err := config.ValidateFallbackTemplate(p.Template); err != nil {
		return "", fmt.Errorf("photo search template: %w", err)
	}
	query := EscapeQuery(strings.TrimSpace(prompt))
	if query == "" {
		return "", fmt.Errorf("photo search: empty query")
	}
	raw := strings.Replace(p.Template, config.QueryPlaceholder, query, 1)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("photo search url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("photo search url %q is not absolute", raw)
	}
	return raw, nil
}

// EscapeQuery percent-encodes s for use as a single URI component. Spaces
// become %20 rather than +.
func EscapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
