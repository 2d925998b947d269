package models

import (
	"errors"
	"strings"
)

// ErrEmptyPrompt is returned when a prompt is blank after trimming.
var ErrEmptyPrompt = errors.New("prompt is required")

// Source identifies which kind of upstream served a generation.
type Source string

const (
	SourceAIProvider    Source = "ai-provider"
	SourcePhotoFallback Source = "photo-fallback"
)

// GenerationRequest is the transient input for a single generation.
type GenerationRequest struct {
	Prompt string `json:"prompt"`
}

// Normalize trims the prompt and rejects an empty one.
func (r GenerationRequest) Normalize() (GenerationRequest, error) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" {
		return r, ErrEmptyPrompt
	}
	return r, nil
}

// GenerationResult is returned to the caller for every request. URL is either
// a data URI holding the generated image or an external photo-search URL.
type GenerationResult struct {
	URL     string `json:"url"`
	Source  Source `json:"source"`
	Message string `json:"message"`
}
