package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/loopdesk/wabridge/internal/dedup"
)

// Outcome is the webhook response body. The HTTP status is always 200
// regardless of outcome: the provider treats any non-2xx as "redeliver", and
// redelivery of a partially dispatched event would duplicate fan-outs.
type Outcome struct {
	RequestID         string `json:"requestId,omitempty"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	MessageType       string `json:"messageType,omitempty"`
	MessageID         string `json:"messageId,omitempty"`
	ChannelsProcessed int    `json:"channelsProcessed,omitempty"`
	SuccessCount      int    `json:"successCount,omitempty"`
	ErrorCount        int    `json:"errorCount,omitempty"`
	Error             string `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

// Orchestrator sequences the inbound pipeline: validate, dedup check,
// classify, resolve, poll media, normalize, fan out, mark processed.
type Orchestrator struct {
	dedup      *dedup.Store
	channels   *ChannelResolver
	contacts   *ContactResolver
	media      *MediaPoller
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(log *slog.Logger, store *dedup.Store, channels *ChannelResolver, contacts *ContactResolver, media *MediaPoller, dispatcher *Dispatcher) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		dedup:      store,
		channels:   channels,
		contacts:   contacts,
		media:      media,
		dispatcher: dispatcher,
		logger:     log.With(slog.String("component", "orchestrator")),
	}
}

// Process runs one inbound webhook payload through the pipeline and returns
// the acknowledgment body. It never panics outward: unexpected failures are
// logged and reported as a status:"error" outcome.
func (o *Orchestrator) Process(ctx context.Context, payload WebhookPayload) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in webhook pipeline", "panic", r)
			out = Outcome{Status: StatusError, Error: "internal error"}
		}
	}()

	ev, outcome, ok := o.validate(payload)
	if !ok {
		return outcome
	}

	identity := dedupIdentity(ev)
	if o.dedup.IsDuplicate(identity) {
		o.logger.Info("duplicate event ignored",
			"message_id", ev.MessageID,
			"service_id", ev.ServiceID,
		)
		return Outcome{Status: StatusIgnored, Reason: "duplicate", MessageID: ev.MessageID}
	}

	if ev.Type.Internal() {
		return Outcome{Status: StatusIgnored, MessageType: string(ev.Type)}
	}

	channels, err := o.channels.ChannelsByServiceID(ctx, ev.ServiceID)
	if err != nil {
		o.logger.Error("channel resolution failed",
			"message_id", ev.MessageID,
			"service_id", ev.ServiceID,
			"error", err,
		)
		return Outcome{Status: StatusError, MessageID: ev.MessageID, Error: "channel resolution failed"}
	}
	if len(channels) == 0 {
		return Outcome{Status: StatusIgnored, Reason: "no_channels", MessageID: ev.MessageID}
	}

	mediaState := MediaResolved
	if ev.Type.Media() && !ev.HasAsset() {
		mediaState = o.media.Resolve(ctx, &ev)
		if mediaState == MediaUnavailable && ev.Type != MessageVideo {
			// The provider redelivers once the asset is processed; dropping
			// now avoids sending an empty placeholder.
			return Outcome{Status: StatusIgnored, Reason: "media_pending", MessageID: ev.MessageID}
		}
	}

	contact := o.contacts.Resolve(ctx, ev)

	delivery, err := Normalize(ev, contact, mediaState)
	if err != nil {
		o.logger.Warn("event not normalizable",
			"message_id", ev.MessageID,
			"type", ev.Type,
			"error", err,
		)
		return Outcome{Status: StatusIgnored, Reason: "unsupported_type", MessageType: string(ev.Type), MessageID: ev.MessageID}
	}

	summary := o.dispatcher.Dispatch(ctx, delivery, channels)

	o.dedup.MarkProcessed(identity, map[string]string{
		"channels": strconv.Itoa(summary.Total),
		"success":  strconv.Itoa(summary.Success),
	})

	o.logger.Info("event dispatched",
		"message_id", ev.MessageID,
		"service_id", ev.ServiceID,
		"channels", summary.Total,
		"success", summary.Success,
		"errors", summary.Errors,
	)
	return Outcome{
		Status:            StatusSuccess,
		MessageID:         ev.MessageID,
		ChannelsProcessed: summary.Total,
		SuccessCount:      summary.Success,
		ErrorCount:        summary.Errors,
	}
}

// validate checks the payload shape and decodes the first data element.
func (o *Orchestrator) validate(payload WebhookPayload) (InboundEvent, Outcome, bool) {
	if payload.Event != EventMessageReceived {
		return InboundEvent{}, Outcome{Status: StatusIgnored, Reason: "unsupported_event"}, false
	}
	raw := payload.Data
	if len(raw) == 0 {
		return InboundEvent{}, Outcome{Status: StatusIgnored, Reason: "invalid_payload"}, false
	}

	// Array payloads carry batched callbacks; only the first is processed.
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return InboundEvent{}, Outcome{Status: StatusIgnored, Reason: "invalid_payload"}, false
		}
		raw = items[0]
	}

	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		o.logger.Warn("malformed webhook data", "error", err)
		return InboundEvent{}, Outcome{Status: StatusIgnored, Reason: "invalid_payload"}, false
	}
	if strings.TrimSpace(ev.MessageID) == "" || strings.TrimSpace(ev.From) == "" || strings.TrimSpace(ev.ServiceID) == "" {
		return InboundEvent{}, Outcome{Status: StatusIgnored, Reason: "invalid_payload"}, false
	}
	return ev, Outcome{}, true
}

func dedupIdentity(ev InboundEvent) dedup.Identity {
	return dedup.Identity{
		MessageID: ev.MessageID,
		From:      ev.From,
		ServiceID: ev.ServiceID,
		Timestamp: ev.Timestamp,
		Content:   ev.Content(),
	}
}
