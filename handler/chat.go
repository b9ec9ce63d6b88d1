// Package handler implements the /chat endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gabisonia/fiber-chat-proxy/apierror"
	"github.com/gabisonia/fiber-chat-proxy/metrics"
	"github.com/gabisonia/fiber-chat-proxy/middleware"
	"github.com/gabisonia/fiber-chat-proxy/strategies"
	"github.com/gabisonia/fiber-chat-proxy/upstream"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatRequest is the inbound body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the success body.
type ChatReply struct {
	Reply string `json:"reply"`
}

type ChatHandler struct {
	strategy  strategies.RateLimitStrategy
	completer upstream.Completer
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewChatHandler wires the handler. collector and logger may be nil.
func NewChatHandler(strategy strategies.RateLimitStrategy, completer upstream.Completer, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		strategy:  strategy,
		completer: completer,
		metrics:   collector,
		logger:    logger,
	}
}

// Handle serves an admitted POST /chat. It must run behind
// middleware.RateLimitingMiddleware.
//
// Quota is consumed only once the completion API has answered successfully.
// A malformed body is rejected after admission and costs nothing, since the
// counter was never written.
func (h *ChatHandler) Handle(c *fiber.Ctx) error {
	admission, ok := middleware.AdmissionFrom(c)
	if !ok {
		return apierror.Internal(errors.New("request reached chat handler without an admission"))
	}

	message, err := parseMessage(c.Body())
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	start := time.Now()
	reply, err := h.completer.Complete(ctx, message)
	if err != nil {
		h.metrics.ObserveUpstream("error", time.Since(start))
		return apierror.Upstream(err)
	}
	h.metrics.ObserveUpstream("ok", time.Since(start))

	if err := h.strategy.Commit(ctx, admission); err != nil {
		h.metrics.RecordCommitFailure()
		h.logger.Error("failed to persist rate limit counter",
			zap.String("client_id", admission.ClientId),
			zap.Error(err))
		return apierror.Internal(err)
	}

	return c.Status(fiber.StatusOK).JSON(ChatReply{Reply: reply})
}

// MethodNotAllowed answers every verb other than POST and OPTIONS.
func MethodNotAllowed(*fiber.Ctx) error {
	return apierror.MethodNotAllowed()
}

func parseMessage(body []byte) (string, error) {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", apierror.InvalidRequest("Invalid JSON body", err)
	}
	if req.Message == "" {
		return "", apierror.InvalidRequest(apierror.MsgMessageRequired, nil)
	}
	return req.Message, nil
}
