package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ncecere/imagegen_gateway/internal/config"
	"github.com/ncecere/imagegen_gateway/internal/health"
	"github.com/ncecere/imagegen_gateway/internal/models"
	"github.com/ncecere/imagegen_gateway/internal/providers"
	"github.com/ncecere/imagegen_gateway/internal/requestctx"
)

const tracerName = "github.com/ncecere/imagegen_gateway/internal/dispatcher"

const (
	messageFallbackAfterFailure = "Photo search result (AI services temporarily unavailable)"
	messageFallbackNoCredential = "Photo search result (AI generation requires Hugging Face token)"
)

// Metrics receives per-attempt and per-generation counters. A nil
// *observability.Provider satisfies it.
type Metrics interface {
	RecordProviderAttempt(provider, outcome string, duration time.Duration)
	RecordGeneration(source string)
}

// Options wires the dispatcher's collaborators. Everything is fixed at
// construction; Generate never mutates the dispatcher.
type Options struct {
	Chain       []providers.Spec
	Attempter   providers.Attempter
	PhotoSearch providers.PhotoSearch
	Credential  config.Credential
	Logger      *slog.Logger
	Metrics     Metrics
	Tracker     *health.Tracker
}

// Dispatcher turns a prompt into exactly one GenerationResult, trying AI
// providers in order before falling back to photo search.
type Dispatcher struct {
	chain       []providers.Spec
	attempter   providers.Attempter
	photoSearch providers.PhotoSearch
	credential  config.Credential
	logger      *slog.Logger
	metrics     Metrics
	tracker     *health.Tracker
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chain := make([]providers.Spec, len(opts.Chain))
	copy(chain, opts.Chain)
	return &Dispatcher{
		chain:       chain,
		attempter:   opts.Attempter,
		photoSearch: opts.PhotoSearch,
		credential:  opts.Credential,
		logger:      logger,
		metrics:     opts.Metrics,
		tracker:     opts.Tracker,
	}
}

// AIEnabled reports whether provider calls will be made.
func (d *Dispatcher) AIEnabled() bool {
	return d.credential.Present() && len(d.chain) > 0 && d.attempter != nil
}

// Chain returns a copy of the configured provider chain.
func (d *Dispatcher) Chain() []providers.Spec {
	out := make([]providers.Spec, len(d.chain))
	copy(out, d.chain)
	return out
}

// Generate resolves prompt to a result. It returns models.ErrEmptyPrompt for a
// blank prompt and a *FailureError when the photo fallback cannot be built;
// provider failures never surface as errors.
func (d *Dispatcher) Generate(ctx context.Context, prompt string) (models.GenerationResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatcher.Generate")
	defer span.End()

	req, err := models.GenerationRequest{Prompt: prompt}.Normalize()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.GenerationResult{}, err
	}

	attempted := false
	if !d.AIEnabled() {
		d.log(ctx).InfoContext(ctx, "ai generation disabled, using photo search",
			slog.Bool("credential_present", d.credential.Present()),
			slog.Int("providers", len(d.chain)),
		)
	} else {
		attempted = true
		if result, ok, failures := d.tryProviders(ctx, req.Prompt); ok {
			d.finish(ctx, result)
			span.SetAttributes(attribute.String("imagegen.source", string(result.Source)))
			return result, nil
		} else if failures != nil {
			span.RecordError(failures)
			d.log(ctx).WarnContext(ctx, "all ai providers failed",
				slog.Int("attempts", len(failures.Errors)),
				slog.String("error", failures.Error()),
			)
		}
	}

	url, err := d.photoSearch.URL(req.Prompt)
	if err != nil {
		d.log(ctx).ErrorContext(ctx, "photo search fallback failed", slog.String("error", err.Error()))
		span.SetStatus(codes.Error, err.Error())
		return models.GenerationResult{}, newFailure(err)
	}

	message := messageFallbackNoCredential
	if attempted {
		message = messageFallbackAfterFailure
	}
	result := models.GenerationResult{
		URL:     url,
		Source:  models.SourcePhotoFallback,
		Message: message,
	}
	span.SetAttributes(attribute.String("imagegen.source", string(result.Source)))
	d.finish(ctx, result)
	return result, nil
}

// tryProviders walks the chain sequentially and stops at the first image.
func (d *Dispatcher) tryProviders(ctx context.Context, prompt string) (models.GenerationResult, bool, *multierror.Error) {
	var failures *multierror.Error

	for _, spec := range d.chain {
		if err := ctx.Err(); err != nil {
			d.log(ctx).WarnContext(ctx, "generation cancelled before provider attempt",
				slog.String("provider", spec.Name),
				slog.String("error", err.Error()),
			)
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", spec.Name, err))
			break
		}

		result := d.attempt(ctx, spec, prompt)
		if success, ok := result.Outcome.(providers.Success); ok {
			return models.GenerationResult{
				URL:     success.DataURI(),
				Source:  models.SourceAIProvider,
				Message: fmt.Sprintf("AI-generated image (%s)", spec.Name),
			}, true, nil
		}
		failures = multierror.Append(failures, fmt.Errorf("%s: %w", spec.Name, result.Outcome.Err()))
	}

	return models.GenerationResult{}, false, failures
}

func (d *Dispatcher) attempt(ctx context.Context, spec providers.Spec, prompt string) providers.AttemptResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "provider.attempt")
	defer span.End()
	span.SetAttributes(attribute.String("imagegen.provider", spec.Name))

	result := d.attempter.Attempt(ctx, spec, d.credential.Token, prompt)
	if result.Outcome == nil {
		result.Outcome = providers.TransportFailure{}
	}
	kind := result.Outcome.Kind()

	span.SetAttributes(
		attribute.String("imagegen.outcome", string(kind)),
		attribute.Int("http.status_code", result.HTTPStatus),
	)
	attrs := []any{
		slog.String("provider", spec.Name),
		slog.Int("status", result.HTTPStatus),
		slog.String("outcome", string(kind)),
		slog.Int64("latency_ms", result.Latency.Milliseconds()),
	}
	if err := result.Outcome.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		attrs = append(attrs, slog.String("error", err.Error()))
		d.log(ctx).WarnContext(ctx, "provider attempt failed", attrs...)
	} else {
		d.log(ctx).InfoContext(ctx, "provider attempt succeeded", attrs...)
	}

	d.tracker.Report(spec.Name, kind)
	if d.metrics != nil {
		d.metrics.RecordProviderAttempt(spec.Name, string(kind), result.Latency)
	}
	return result
}

func (d *Dispatcher) finish(ctx context.Context, result models.GenerationResult) {
	d.log(ctx).InfoContext(ctx, "generation complete",
		slog.String("source", string(result.Source)),
		slog.String("message", result.Message),
	)
	if d.metrics != nil {
		d.metrics.RecordGeneration(string(result.Source))
	}
}

func (d *Dispatcher) log(ctx context.Context) *slog.Logger {
	return requestctx.Logger(ctx, d.logger)
}
