package public

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ncecere/imagegen_gateway/internal/app"
	"github.com/ncecere/imagegen_gateway/internal/cache"
	"github.com/ncecere/imagegen_gateway/internal/dispatcher"
	"github.com/ncecere/imagegen_gateway/internal/httpserver/httputil"
	"github.com/ncecere/imagegen_gateway/internal/limits"
	"github.com/ncecere/imagegen_gateway/internal/models"
	"github.com/ncecere/imagegen_gateway/internal/requestctx"
)

const (
	headerIdempotencyKey   = "Idempotency-Key"
	headerIdempotentReplay = "Idempotent-Replay"

	msgPromptRequired   = "Prompt is required"
	msgInvalidBody      = "invalid request body"
	msgMethodNotAllowed = "Method not allowed"
	msgTotalFailure     = "All image generation methods failed"
)

var errInvalidBody = errors.New(msgInvalidBody)

type generateRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

type generateHandler struct {
	container *app.Container
	validate  *validator.Validate
	inflight  singleflight.Group
}

func newGenerateHandler(container *app.Container) *generateHandler {
	return &generateHandler{
		container: container,
		validate:  validator.New(),
	}
}

func (h *generateHandler) generate(c *fiber.Ctx) error {
	ctx := userContext(c)
	logger := h.logger()

	req, err := h.parseRequest(c.Body())
	if err != nil {
		if errors.Is(err, errInvalidBody) {
			return httputil.WriteError(c, fiber.StatusBadRequest, msgInvalidBody)
		}
		return httputil.WriteError(c, fiber.StatusBadRequest, msgPromptRequired)
	}

	key := strings.Clone(strings.TrimSpace(c.Get(headerIdempotencyKey)))
	ctx = requestctx.WithContext(ctx, &requestctx.Context{
		RequestID:      requestID(c),
		ClientIP:       c.IP(),
		IdempotencyKey: key,
		ReceivedAt:     time.Now().UTC(),
	})
	c.SetUserContext(ctx)
	if key != "" && h.container.Idempotency != nil {
		if result, ok := h.container.Idempotency.Get(ctx, key, req.Prompt); ok {
			c.Set(headerIdempotentReplay, "true")
			return c.JSON(result)
		}
	}

	release, err := h.container.AcquireRateLimits(ctx, c.IP())
	if err != nil {
		if errors.Is(err, limits.ErrLimitExceeded) {
			return httputil.WriteError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		logger.WarnContext(ctx, "rate limiter unavailable, admitting request", slog.String("error", err.Error()))
		release = func() {}
	}
	defer release()

	result, err := h.run(ctx, key, req.Prompt)
	if err != nil {
		return h.writeGenerateError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// parseRequest accepts any content type so clients that omit the JSON
// header still work.
func (h *generateHandler) parseRequest(body []byte) (generateRequest, error) {
	var req generateRequest
	if len(bytes.TrimSpace(body)) == 0 {
		return req, models.ErrEmptyPrompt
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errInvalidBody
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := h.validate.Struct(req); err != nil {
		return req, models.ErrEmptyPrompt
	}
	return req, nil
}

// run generates once per idempotency key within this process and, when
// Redis is available, across instances.
func (h *generateHandler) run(ctx context.Context, key, prompt string) (models.GenerationResult, error) {
	if key == "" || h.container.Idempotency == nil {
		return h.container.Dispatcher.Generate(ctx, prompt)
	}

	value, err, _ := h.inflight.Do(key+"\x00"+prompt, func() (any, error) {
		unlock, err := h.container.KeyLock.Acquire(ctx, key, prompt)
		if err != nil {
			if errors.Is(err, cache.ErrInFlight) {
				return nil, err
			}
			h.logger().WarnContext(ctx, "idempotency lock unavailable", slog.String("error", err.Error()))
			unlock = func() {}
		}
		defer unlock()

		if cached, ok := h.container.Idempotency.Get(ctx, key, prompt); ok {
			return cached, nil
		}
		result, err := h.container.Dispatcher.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if ctx.Err() == nil {
			if err := h.container.Idempotency.Set(ctx, key, prompt, result); err != nil {
				h.logger().WarnContext(ctx, "store idempotent result failed", slog.String("error", err.Error()))
			}
		}
		return result, nil
	})
	if err != nil {
		return models.GenerationResult{}, err
	}
	return value.(models.GenerationResult), nil
}

func (h *generateHandler) writeGenerateError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrEmptyPrompt):
		return httputil.WriteError(c, fiber.StatusBadRequest, msgPromptRequired)
	case errors.Is(err, cache.ErrInFlight):
		return httputil.WriteError(c, fiber.StatusConflict, err.Error())
	}
	details, ok := dispatcher.AsFailure(err)
	if !ok {
		details = err.Error()
	}
	h.logger().ErrorContext(userContext(c), "image generation failed", slog.String("error", err.Error()))
	return httputil.WriteErrorDetails(c, fiber.StatusInternalServerError, msgTotalFailure, details)
}

func (h *generateHandler) logger() *slog.Logger {
	if h.container.Logger != nil {
		return h.container.Logger
	}
	return slog.Default()
}

func methodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, "POST, OPTIONS")
	return httputil.WriteError(c, fiber.StatusMethodNotAllowed, msgMethodNotAllowed)
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

func userContext(c *fiber.Ctx) context.Context {
	if c == nil {
		return context.Background()
	}
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}
