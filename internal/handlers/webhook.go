package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/loopdesk/wabridge/internal/bridge"
)

type webhookPipeline interface {
	Process(ctx context.Context, payload bridge.WebhookPayload) bridge.Outcome
}

// WebhookHandler receives inbound provider callbacks. It always answers 200:
// the provider redelivers on any other status, and redelivery mid-dispatch
// would duplicate partially completed fan-outs.
type WebhookHandler struct {
	logger   *slog.Logger
	pipeline webhookPipeline
}

// NewWebhookHandler creates the provider webhook handler.
func NewWebhookHandler(log *slog.Logger, pipeline webhookPipeline) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:   log.With(slog.String("handler", "webhook")),
		pipeline: pipeline,
	}
}

// Register registers the webhook route.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Handle)
}

// Handle processes one provider callback. Each ingest gets its own request ID
// so a delivery can be traced across the dispatch logs from the ack alone.
func (h *WebhookHandler) Handle(c echo.Context) error {
	requestID := uuid.NewString()
	var payload bridge.WebhookPayload
	if err := c.Bind(&payload); err != nil {
		h.logger.Warn("unreadable webhook body", "requestId", requestID, "error", err)
		return c.JSON(http.StatusOK, bridge.Outcome{
			RequestID: requestID,
			Status:    bridge.StatusIgnored,
			Reason:    "invalid_payload",
		})
	}
	outcome := h.pipeline.Process(c.Request().Context(), payload)
	outcome.RequestID = requestID
	h.logger.Info("webhook processed",
		"requestId", requestID,
		"status", outcome.Status,
		"reason", outcome.Reason,
		"messageId", outcome.MessageID)
	return c.JSON(http.StatusOK, outcome)
}
