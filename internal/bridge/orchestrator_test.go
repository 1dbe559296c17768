package bridge_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/loopdesk/wabridge/internal/bridge"
	"github.com/loopdesk/wabridge/internal/dedup"
)

type recordedDelivery struct {
	channel  bridge.ChannelConfig
	delivery bridge.Delivery
}

type recordingDesk struct {
	mu         sync.Mutex
	deliveries []recordedDelivery
}

func (r *recordingDesk) Deliver(ctx context.Context, ch bridge.ChannelConfig, d bridge.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, recordedDelivery{channel: ch, delivery: d})
	return nil
}

func (r *recordingDesk) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

type pipeline struct {
	orch  *bridge.Orchestrator
	desk  *recordingDesk
	dedup *dedup.Store
}

func newPipeline(t *testing.T, dir *mockDirectory, fetcher *mockFetcher) *pipeline {
	t.Helper()
	store := dedup.NewStore(time.Minute, time.Minute)
	t.Cleanup(store.Close)

	deskMock := &recordingDesk{}
	exec := fastRetry()
	orch := bridge.NewOrchestrator(
		nil,
		store,
		bridge.NewChannelResolver(nil, dir, time.Minute),
		bridge.NewContactResolver(nil, &mockContacts{}, time.Minute, "55"),
		bridge.NewMediaPoller(nil, fetcher, exec, 2, 5*time.Millisecond),
		bridge.NewDispatcher(nil, deskMock, exec),
	)
	return &pipeline{orch: orch, desk: deskMock, dedup: store}
}

func twoChannelDirectory() *mockDirectory {
	return &mockDirectory{channels: []bridge.ChannelConfig{
		{ChannelID: "ch-1", Token: "t1", ServiceID: "svc-s"},
		{ChannelID: "ch-2", Token: "t2", ServiceID: "svc-s"},
	}}
}

func textPayload(t *testing.T, messageID string) bridge.WebhookPayload {
	t.Helper()
	data, err := json.Marshal(bridge.InboundEvent{
		MessageID: messageID,
		From:      "5511999990000@c.us",
		ServiceID: "svc-s",
		Type:      bridge.MessageText,
		Timestamp: 1700000000000,
		Text:      "hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	return bridge.WebhookPayload{Event: bridge.EventMessageReceived, Data: data}
}

func TestInboundTextFansOutToAllChannels(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	out := p.orch.Process(context.Background(), textPayload(t, "msg-a"))
	if out.Status != bridge.StatusSuccess {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.ChannelsProcessed != 2 || out.SuccessCount != 2 || out.ErrorCount != 0 {
		t.Fatalf("outcome = %+v, want channelsProcessed=2 successCount=2", out)
	}
	if got := p.desk.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2", got)
	}
	for _, rec := range p.desk.deliveries {
		msg, ok := rec.delivery.Message.(bridge.TextMessage)
		if !ok || msg.Text != "hello" {
			t.Fatalf("delivered message = %+v, want text hello", rec.delivery.Message)
		}
	}
}

func TestTicketEventIgnoredWithoutDispatch(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	data, _ := json.Marshal(bridge.InboundEvent{
		MessageID: "msg-t",
		From:      "5511999990000@c.us",
		ServiceID: "svc-s",
		Type:      bridge.MessageTicket,
		Timestamp: 1700000000000,
	})
	out := p.orch.Process(context.Background(), bridge.WebhookPayload{
		Event: bridge.EventMessageReceived,
		Data:  data,
	})
	if out.Status != bridge.StatusIgnored || out.MessageType != "ticket" {
		t.Fatalf("outcome = %+v, want ignored ticket", out)
	}
	if got := p.desk.count(); got != 0 {
		t.Fatalf("deliveries = %d, want 0", got)
	}
}

func TestVideoAssetResolvedBySecondPoll(t *testing.T) {
	t.Parallel()
	fetcher := &mockFetcher{resolveOn: 2, url: "https://cdn.example/clip.mp4"}
	p := newPipeline(t, twoChannelDirectory(), fetcher)

	data, _ := json.Marshal(bridge.InboundEvent{
		MessageID: "msg-v",
		From:      "5511999990000@c.us",
		ServiceID: "svc-s",
		Type:      bridge.MessageVideo,
		Timestamp: 1700000000000,
	})
	out := p.orch.Process(context.Background(), bridge.WebhookPayload{
		Event: bridge.EventMessageReceived,
		Data:  data,
	})
	if out.Status != bridge.StatusSuccess {
		t.Fatalf("outcome = %+v, want success", out)
	}
	for _, rec := range p.desk.deliveries {
		msg, ok := rec.delivery.Message.(bridge.MediaMessage)
		if !ok {
			t.Fatalf("delivered message = %+v, want media, not fallback text", rec.delivery.Message)
		}
		if msg.URL != "https://cdn.example/clip.mp4" {
			t.Fatalf("URL = %q, want polled asset", msg.URL)
		}
	}
}

func TestDuplicateRedeliveryIgnored(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})
	payload := textPayload(t, "msg-dup")

	first := p.orch.Process(context.Background(), payload)
	if first.Status != bridge.StatusSuccess {
		t.Fatalf("first outcome = %+v, want success", first)
	}

	second := p.orch.Process(context.Background(), payload)
	if second.Status != bridge.StatusIgnored || second.Reason != "duplicate" {
		t.Fatalf("second outcome = %+v, want ignored duplicate", second)
	}
	if got := p.desk.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2 (no re-dispatch)", got)
	}
}

func TestNoSubscribedChannelsIgnored(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &mockDirectory{}, &mockFetcher{})

	out := p.orch.Process(context.Background(), textPayload(t, "msg-n"))
	if out.Status != bridge.StatusIgnored || out.Reason != "no_channels" {
		t.Fatalf("outcome = %+v, want ignored no_channels", out)
	}
}

func TestUnsupportedEventIgnored(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	out := p.orch.Process(context.Background(), bridge.WebhookPayload{Event: "status.updated"})
	if out.Status != bridge.StatusIgnored || out.Reason != "unsupported_event" {
		t.Fatalf("outcome = %+v, want ignored unsupported_event", out)
	}
}

func TestArrayDataProcessesFirstElement(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	first := bridge.InboundEvent{
		MessageID: "msg-arr",
		From:      "5511999990000@c.us",
		ServiceID: "svc-s",
		Type:      bridge.MessageText,
		Timestamp: 1700000000000,
		Text:      "first",
	}
	second := first
	second.MessageID = "msg-arr-2"
	second.Text = "second"
	data, _ := json.Marshal([]bridge.InboundEvent{first, second})

	out := p.orch.Process(context.Background(), bridge.WebhookPayload{
		Event: bridge.EventMessageReceived,
		Data:  data,
	})
	if out.Status != bridge.StatusSuccess || out.MessageID != "msg-arr" {
		t.Fatalf("outcome = %+v, want success for msg-arr", out)
	}
	if got := p.desk.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2 (one event, two channels)", got)
	}
}

func TestMissingIdentityFieldsIgnored(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	data, _ := json.Marshal(bridge.InboundEvent{Type: bridge.MessageText, Text: "no ids"})
	out := p.orch.Process(context.Background(), bridge.WebhookPayload{
		Event: bridge.EventMessageReceived,
		Data:  data,
	})
	if out.Status != bridge.StatusIgnored || out.Reason != "invalid_payload" {
		t.Fatalf("outcome = %+v, want ignored invalid_payload", out)
	}
}

func TestImageWithoutAssetDropped(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	data, _ := json.Marshal(bridge.InboundEvent{
		MessageID: "msg-img",
		From:      "5511999990000@c.us",
		ServiceID: "svc-s",
		Type:      bridge.MessageImage,
		Timestamp: 1700000000000,
	})
	out := p.orch.Process(context.Background(), bridge.WebhookPayload{
		Event: bridge.EventMessageReceived,
		Data:  data,
	})
	if out.Status != bridge.StatusIgnored || out.Reason != "media_pending" {
		t.Fatalf("outcome = %+v, want ignored media_pending", out)
	}
	if got := p.desk.count(); got != 0 {
		t.Fatalf("deliveries = %d, want 0", got)
	}
}

func TestVideoFallbackTextWhenNeverResolved(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, twoChannelDirectory(), &mockFetcher{})

	data, _ := json.Marshal(bridge.InboundEvent{
		MessageID: "msg-vf",
		From:      "5511999990000@c.us",
		ServiceID: "svc-s",
		Type:      bridge.MessageVideo,
		Timestamp: 1700000000000,
	})
	out := p.orch.Process(context.Background(), bridge.WebhookPayload{
		Event: bridge.EventMessageReceived,
		Data:  data,
	})
	if out.Status != bridge.StatusSuccess {
		t.Fatalf("outcome = %+v, want success with fallback", out)
	}
	for _, rec := range p.desk.deliveries {
		msg, ok := rec.delivery.Message.(bridge.TextMessage)
		if !ok || msg.Text != bridge.MediaFallbackText(bridge.MessageVideo) {
			t.Fatalf("delivered message = %+v, want fallback text", rec.delivery.Message)
		}
	}
}
