package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

const (
	defaultAttemptTimeout = 45 * time.Second
	// maxImageBytes caps how much of a provider response is buffered.
	maxImageBytes = 20 << 20
	// maxSnippetBytes caps error bodies kept for logging.
	maxSnippetBytes = 512
)

// Attempter performs a single provider attempt. The dispatcher depends on this
// interface so tests can substitute scripted outcomes.
type Attempter interface {
	Attempt(ctx context.Context, spec Spec, token, prompt string) AttemptResult
}

// Client issues authenticated inference requests and classifies responses.
type Client struct {
	rc      *resty.Client
	timeout time.Duration
}

// NewClient constructs a Client. A nil http.Client gets resty's default
// transport; timeout bounds each attempt independently of the caller's deadline.
func NewClient(hc *http.Client, timeout time.Duration) *Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}
	rc.SetLogger(restyLogger{})
	rc.SetHeader("User-Agent", "imagegen-gateway/1.0")
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	return &Client{rc: rc, timeout: timeout}
}

// Attempt posts the prompt to one provider. It never returns an error: every
// failure mode is folded into the returned Outcome.
func (c *Client) Attempt(ctx context.Context, spec Spec, token, prompt string) AttemptResult {
	start := time.Now()
	result := AttemptResult{Provider: spec.Name}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, outcome := c.do(attemptCtx, spec, token, prompt)
	result.HTTPStatus = status
	result.Outcome = outcome
	result.Latency = time.Since(start)
	return result
}

func (c *Client) do(ctx context.Context, spec Spec, token, prompt string) (int, Outcome) {
	if spec.BuildBody == nil {
		return 0, TransportFailure{Cause: fmt.Errorf("provider %q has no body builder", spec.Name)}
	}
	body, err := spec.BuildBody(prompt)
	if err != nil {
		return 0, TransportFailure{Cause: fmt.Errorf("build request body: %w", err)}
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "image/*, application/json").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(spec.Endpoint)
	if resp != nil && resp.RawBody() != nil {
		defer resp.RawBody().Close()
	}
	if err != nil {
		return 0, TransportFailure{Cause: err}
	}
	raw := resp.RawBody()
	if raw == nil {
		return resp.StatusCode(), TransportFailure{Cause: errors.New("empty response")}
	}

	status := resp.StatusCode()
	if !resp.IsSuccess() {
		snippet, _ := io.ReadAll(io.LimitReader(raw, maxSnippetBytes))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return status, UpstreamError{Message: fmt.Sprintf("status %d: %s", status, msg)}
	}

	data, err := io.ReadAll(io.LimitReader(raw, maxImageBytes+1))
	if err != nil {
		return status, TransportFailure{Cause: fmt.Errorf("read response body: %w", err)}
	}
	if len(data) > maxImageBytes {
		return status, UnexpectedFormat{Body: "response exceeds size limit"}
	}

	if mediaType, ok := imageMediaType(resp.Header().Get("Content-Type")); ok {
		if len(data) == 0 {
			return status, UnexpectedFormat{Body: "empty image body"}
		}
		return status, Success{Image: data, ContentType: refineMediaType(mediaType, data)}
	}
	return status, classifyBody(data)
}

// refineMediaType replaces a wildcard image type with the sniffed one.
func refineMediaType(declared string, data []byte) string {
	if !strings.HasSuffix(declared, "/*") {
		return declared
	}
	if detected := mimetype.Detect(data).String(); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return declared
}

// classifyBody handles a 2xx response that is not an image.
func classifyBody(data []byte) Outcome {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return UnexpectedFormat{Body: snippet(data)}
	}
	raw, ok := payload["error"]
	if !ok {
		return UnexpectedFormat{Body: snippet(data)}
	}
	if msg, ok := errorMessage(raw); ok {
		return UpstreamError{Message: msg}
	}
	return UnexpectedFormat{Body: snippet(data)}
}

// errorMessage reports a usable message when the error field is truthy.
func errorMessage(raw json.RawMessage) (string, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case bool:
		return "error", v
	case float64:
		return string(raw), v != 0
	default:
		return string(raw), true
	}
}

func imageMediaType(contentType string) (string, bool) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fall back to a plain prefix check on malformed parameters.
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	if !strings.HasPrefix(mediaType, "image/") || len(mediaType) == len("image/") {
		return "", false
	}
	return mediaType, true
}

func snippet(data []byte) string {
	if len(data) > maxSnippetBytes {
		data = data[:maxSnippetBytes]
	}
	return string(data)
}

// IsTimeout reports whether an attempt failed because its deadline elapsed.
func IsTimeout(outcome Outcome) bool {
	tf, ok := outcome.(TransportFailure)
	if !ok || tf.Cause == nil {
		return false
	}
	if errors.Is(tf.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(tf.Cause, &netErr) && netErr.Timeout()
}

// restyLogger routes resty's internal messages through slog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	slog.Default().Error(fmt.Sprintf(format, v...), slog.String("component", "resty"))
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	slog.Default().Warn(fmt.Sprintf(format, v...), slog.String("component", "resty"))
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	slog.Default().Debug(fmt.Sprintf(format, v...), slog.String("component", "resty"))
}
