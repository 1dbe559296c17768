// Package desk is the client for the downstream conversation-desk platform:
// the channel directory that drives routing, and the per-channel webhook
// ingestion endpoint that receives normalized deliveries.
package desk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loopdesk/wabridge/internal/bridge"
	"github.com/loopdesk/wabridge/internal/config"
	"github.com/loopdesk/wabridge/internal/retry"
)

// Client talks to the desk REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   *retry.Executor
	logger  *slog.Logger
}

// NewClient creates a desk client from config.
func NewClient(log *slog.Logger, cfg config.DeskConfig, exec *retry.Executor) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccountToken,
		http:    &http.Client{Timeout: cfg.Timeout()},
		retry:   exec,
		logger:  log.With(slog.String("component", "desk")),
	}
}

// ListChannels fetches the full channel routing table from the desk
// integration directory. The bridge caches the filtered result per service.
func (c *Client) ListChannels(ctx context.Context) ([]bridge.ChannelConfig, error) {
	resp, err := c.retry.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/integrations/channels", nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return c.http.Do(req)
	}, retry.Context{Op: "desk.list_channels"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Channels []bridge.ChannelConfig `json:"channels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode channel directory: %w", err)
	}
	return out.Channels, nil
}

// Deliver posts one normalized delivery to the desk webhook for the given
// channel, authenticated with that channel's own token. The per-channel
// retry wrapping happens in the fan-out dispatcher, so a single attempt here.
func (c *Client) Deliver(ctx context.Context, ch bridge.ChannelConfig, d bridge.Delivery) error {
	payload, err := json.Marshal(deliveryBody(ch, d))
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode delivery: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/channels/"+ch.ChannelID+"/webhook", bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ch.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ch.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &retry.HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func deliveryBody(ch bridge.ChannelConfig, d bridge.Delivery) map[string]any {
	body := map[string]any{
		"messageId": d.MessageID,
		"serviceId": d.ServiceID,
		"channelId": ch.ChannelID,
		"timestamp": d.Timestamp,
		"contact":   d.Contact,
		"kind":      d.Message.Kind(),
		"message":   d.Message,
	}
	if d.UserID != "" {
		body["userId"] = d.UserID
	}
	if d.Echo {
		body["echo"] = true
	}
	return body
}
