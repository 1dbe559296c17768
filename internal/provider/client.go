// Package provider is the client for the upstream WhatsApp provider API:
// contact-profile lookup, message detail with asset, outbound sends, and
// message status. Every call is wrapped by the retry executor.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/loopdesk/wabridge/internal/bridge"
	"github.com/loopdesk/wabridge/internal/config"
	"github.com/loopdesk/wabridge/internal/retry"
)

// Client talks to the provider's instance-scoped REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   *retry.Executor
	logger  *slog.Logger
}

// NewClient creates a provider client from config. The http.Client timeout
// bounds every individual attempt; the retry executor bounds the total.
func NewClient(log *slog.Logger, cfg config.ProviderConfig, exec *retry.Executor) *Client {
	if log == nil {
		log = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.InstanceID != "" {
		base = fmt.Sprintf("%s/instances/%s", base, cfg.InstanceID)
	}
	return &Client{
		baseURL: base,
		token:   cfg.InstanceToken,
		http:    &http.Client{Timeout: cfg.Timeout()},
		retry:   exec,
		logger:  log.With(slog.String("component", "provider")),
	}
}

// envelope is the provider's soft-failure wrapper: some endpoints answer 200
// with success=false instead of an error status.
type envelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

// GetContact fetches the profile for a contact identifier.
func (c *Client) GetContact(ctx context.Context, contactID string) (bridge.ContactProfile, error) {
	var out struct {
		envelope
		bridge.ContactProfile
	}
	err := c.getJSON(ctx, "/contacts/"+url.PathEscape(contactID), &out, retry.Context{
		Op:            "provider.get_contact",
		CorrelationID: contactID,
	})
	if err != nil {
		return bridge.ContactProfile{}, err
	}
	if out.failed() {
		return bridge.ContactProfile{}, retry.Permanent(fmt.Errorf("contact lookup rejected: %s", out.Message))
	}
	return out.ContactProfile, nil
}

// GetMessage fetches the current message detail, including any asset URL the
// provider has attached since the original webhook fired.
func (c *Client) GetMessage(ctx context.Context, messageID string) (bridge.InboundEvent, error) {
	var out struct {
		envelope
		bridge.InboundEvent
	}
	err := c.getJSON(ctx, "/messages/"+url.PathEscape(messageID), &out, retry.Context{
		Op:            "provider.get_message",
		CorrelationID: messageID,
	})
	if err != nil {
		return bridge.InboundEvent{}, err
	}
	if out.failed() {
		return bridge.InboundEvent{}, retry.Permanent(fmt.Errorf("message lookup rejected: %s", out.Message))
	}
	return out.InboundEvent, nil
}

// SendResult is the provider's acknowledgment of an accepted send.
type SendResult struct {
	MID string `json:"mId"`
}

// Send delivers an outbound message to phone. Composition is a direct field
// mapping per message kind.
func (c *Client) Send(ctx context.Context, phone string, msg bridge.Normalized) (SendResult, error) {
	path, body, err := composeSend(phone, msg)
	if err != nil {
		return SendResult{}, retry.Permanent(err)
	}
	var out struct {
		envelope
		SendResult
	}
	if err := c.postJSON(ctx, path, body, &out, retry.Context{
		Op:            "provider.send",
		CorrelationID: phone,
	}); err != nil {
		return SendResult{}, err
	}
	if out.failed() {
		return SendResult{}, retry.Permanent(fmt.Errorf("send rejected: %s", out.Message))
	}
	return out.SendResult, nil
}

// MessageStatus is the delivery state of a previously sent message.
type MessageStatus struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Status queries the delivery state of a sent message.
func (c *Client) Status(ctx context.Context, messageID string) (MessageStatus, error) {
	var out MessageStatus
	err := c.getJSON(ctx, "/messages/"+url.PathEscape(messageID)+"/status", &out, retry.Context{
		Op:            "provider.status",
		CorrelationID: messageID,
	})
	if err != nil {
		return MessageStatus{}, err
	}
	return out, nil
}

func composeSend(phone string, msg bridge.Normalized) (string, any, error) {
	switch m := msg.(type) {
	case bridge.TextMessage:
		return "/send-text", map[string]any{"phone": phone, "message": m.Text}, nil
	case bridge.LocationMessage:
		return "/send-location", map[string]any{
			"phone":     phone,
			"latitude":  m.Latitude,
			"longitude": m.Longitude,
			"name":      m.Name,
			"address":   m.Address,
		}, nil
	case bridge.QuickReplyMessage:
		return "/send-button-list", map[string]any{
			"phone":   phone,
			"message": m.Text,
			"options": m.Options,
		}, nil
	case bridge.MediaMessage:
		return "/send-media", map[string]any{
			"phone":    phone,
			"url":      m.URL,
			"mimeType": m.MimeType,
			"fileName": m.Name,
			"caption":  m.Caption,
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported message kind %q", msg.Kind())
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any, rc retry.Context) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out, rc)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any, rc retry.Context) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out, rc)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, rc retry.Context) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("encode request: %w", err))
		}
	}

	resp, err := c.retry.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Client-Token", c.token)
		}
		return c.http.Do(req)
	}, rc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", rc.Op, err)
	}
	return nil
}
