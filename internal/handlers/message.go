package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/loopdesk/wabridge/internal/bridge"
	"github.com/loopdesk/wabridge/internal/provider"
	"github.com/loopdesk/wabridge/internal/retry"
)

type messageSender interface {
	Send(ctx context.Context, phone string, msg bridge.Normalized) (provider.SendResult, error)
	Status(ctx context.Context, messageID string) (provider.MessageStatus, error)
}

type channelSource interface {
	ChannelByID(ctx context.Context, channelID string) (bridge.ChannelConfig, bool, error)
	ChannelByToken(ctx context.Context, token string) (bridge.ChannelConfig, bool, error)
}

// SendRequest is the desk-triggered outbound send body.
type SendRequest struct {
	To        string             `json:"to" validate:"required"`
	Kind      bridge.MessageKind `json:"kind" validate:"required,oneof=text media location quick_reply"`
	Text      string             `json:"text,omitempty"`
	URL       string             `json:"url,omitempty"`
	MimeType  string             `json:"mimeType,omitempty"`
	Name      string             `json:"name,omitempty"`
	Caption   string             `json:"caption,omitempty"`
	Media     bridge.MessageType `json:"media,omitempty"`
	Latitude  float64            `json:"latitude,omitempty"`
	Longitude float64            `json:"longitude,omitempty"`
	Address   string             `json:"address,omitempty"`
	Options   []string           `json:"options,omitempty"`
}

// MessageHandler serves the outbound send and status-query endpoints. Unlike
// the webhook, these have a synchronous caller expecting real status codes.
type MessageHandler struct {
	logger   *slog.Logger
	sender   messageSender
	channels channelSource
	validate *validator.Validate
}

// NewMessageHandler creates the outbound message handler.
func NewMessageHandler(log *slog.Logger, sender messageSender, channels channelSource) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessageHandler{
		logger:   log.With(slog.String("handler", "message")),
		sender:   sender,
		channels: channels,
		validate: validator.New(),
	}
}

// Register registers the send and status routes.
func (h *MessageHandler) Register(e *echo.Echo) {
	e.POST("/:channelId/message", h.SendToChannel)
	e.POST("/message", h.Send)
	e.GET("/message/:id/status", h.Status)
}

// SendToChannel sends through an explicitly named channel. The bearer token
// must match that channel's configured token.
func (h *MessageHandler) SendToChannel(c echo.Context) error {
	channelID := strings.TrimSpace(c.Param("channelId"))
	ch, found, err := h.channels.ChannelByID(c.Request().Context(), channelID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "channel lookup failed")
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "unknown channel")
	}
	if bearerToken(c) != ch.Token {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return h.send(c)
}

// Send resolves the channel by its bearer token when no channel id is given.
func (h *MessageHandler) Send(c echo.Context) error {
	token := bearerToken(c)
	_, found, err := h.channels.ChannelByToken(c.Request().Context(), token)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "channel lookup failed")
	}
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return h.send(c)
}

func (h *MessageHandler) send(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := req.message()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.sender.Send(c.Request().Context(), req.To, msg)
	if err != nil {
		h.logger.Error("outbound send failed", "to", req.To, "error", err)
		var httpErr *retry.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "provider rejected message")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "send failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"mId": result.MID})
}

// Status returns the provider delivery state of a sent message.
func (h *MessageHandler) Status(c echo.Context) error {
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		return echo.NewHTTPError(http.StatusNotFound, "unknown message")
	}
	status, err := h.sender.Status(c.Request().Context(), messageID)
	if err != nil {
		var httpErr *retry.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "unknown message")
		}
		h.logger.Error("status query failed", "message_id", messageID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "status query failed")
	}
	return c.JSON(http.StatusOK, status)
}

func (r SendRequest) message() (bridge.Normalized, error) {
	switch r.Kind {
	case bridge.KindText:
		if strings.TrimSpace(r.Text) == "" {
			return nil, errors.New("text is required")
		}
		return bridge.TextMessage{Text: r.Text}, nil
	case bridge.KindMedia:
		if strings.TrimSpace(r.URL) == "" {
			return nil, errors.New("url is required")
		}
		media := r.Media
		if media == "" {
			media = bridge.MessageDocument
		}
		return bridge.MediaMessage{
			Media:    media,
			URL:      r.URL,
			MimeType: r.MimeType,
			Name:     r.Name,
			Caption:  r.Caption,
		}, nil
	case bridge.KindLocation:
		return bridge.LocationMessage{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Name:      r.Name,
			Address:   r.Address,
		}, nil
	case bridge.KindQuickReply:
		if strings.TrimSpace(r.Text) == "" {
			return nil, errors.New("text is required")
		}
		if len(r.Options) == 0 {
			return nil, errors.New("options are required")
		}
		return bridge.QuickReplyMessage{Text: r.Text, Options: r.Options}, nil
	default:
		return nil, errors.New("unsupported message kind")
	}
}

func bearerToken(c echo.Context) string {
	header := strings.TrimSpace(c.Request().Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
