package providers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// OutcomeKind labels an attempt outcome for logs and metrics.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeUpstreamError    OutcomeKind = "upstream_error"
	OutcomeUnexpectedFormat OutcomeKind = "unexpected_format"
	OutcomeTransportFailure OutcomeKind = "transport_failure"
)

// Outcome is the classified result of a single provider attempt. The set of
// implementations is closed: Success, UpstreamError, UnexpectedFormat and
// TransportFailure.
type Outcome interface {
	Kind() OutcomeKind
	// Err is nil for Success and describes the failure otherwise.
	Err() error
	sealed()
}

// Success carries the image bytes returned by a provider.
type Success struct {
	Image       []byte
	ContentType string
}

func (Success) Kind() OutcomeKind { return OutcomeSuccess }
func (Success) Err() error        { return nil }
func (Success) sealed()           {}

// DataURI encodes the image as a base64 data URI.
func (s Success) DataURI() string {
	return "data:" + s.ContentType + ";base64," + base64.StdEncoding.EncodeToString(s.Image)
}

// UpstreamError is a non-2xx response or a 2xx JSON body carrying an error field.
type UpstreamError struct {
	Message string
}

func (UpstreamError) Kind() OutcomeKind { return OutcomeUpstreamError }
func (u UpstreamError) Err() error      { return fmt.Errorf("upstream error: %s", u.Message) }
func (UpstreamError) sealed()           {}

// UnexpectedFormat is a 2xx response that is neither an image nor a JSON error.
type UnexpectedFormat struct {
	Body string
}

func (UnexpectedFormat) Kind() OutcomeKind { return OutcomeUnexpectedFormat }
func (UnexpectedFormat) Err() error        { return errors.New("unexpected response format") }
func (UnexpectedFormat) sealed()           {}

// TransportFailure wraps DNS, connection and timeout errors.
type TransportFailure struct {
	Cause error
}

func (TransportFailure) Kind() OutcomeKind { return OutcomeTransportFailure }
func (t TransportFailure) Err() error {
	if t.Cause == nil {
		return errors.New("transport failure")
	}
	return fmt.Errorf("transport failure: %w", t.Cause)
}
func (TransportFailure) sealed() {}

// AttemptResult records one provider attempt. It is not retained past the
// dispatcher loop iteration that produced it.
type AttemptResult struct {
	Provider   string
	HTTPStatus int
	Latency    time.Duration
	Outcome    Outcome
}

// Succeeded reports whether the attempt produced an image.
func (r AttemptResult) Succeeded() bool {
	_, ok := r.Outcome.(Success)
	return ok
}
