package bridge_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopdesk/wabridge/internal/bridge"
)

type mockFetcher struct {
	resolveOn int32
	url       string
	calls     atomic.Int32
}

func (m *mockFetcher) GetMessage(ctx context.Context, messageID string) (bridge.InboundEvent, error) {
	call := m.calls.Add(1)
	ev := bridge.InboundEvent{MessageID: messageID, Type: bridge.MessageVideo}
	if m.resolveOn > 0 && call >= m.resolveOn {
		ev.File = &bridge.FileRef{URL: m.url, MimeType: "video/mp4"}
	}
	return ev, nil
}

func newPoller(fetcher *mockFetcher) *bridge.MediaPoller {
	return bridge.NewMediaPoller(nil, fetcher, fastRetry(), 2, 5*time.Millisecond)
}

func TestAssetAlreadyPresent(t *testing.T) {
	t.Parallel()
	fetcher := &mockFetcher{}
	poller := newPoller(fetcher)

	ev := bridge.InboundEvent{
		MessageID: "msg-1",
		Type:      bridge.MessageVideo,
		File:      &bridge.FileRef{URL: "https://cdn.example/v.mp4"},
	}
	if state := poller.Resolve(context.Background(), &ev); state != bridge.MediaResolved {
		t.Fatalf("state = %v, want MediaResolved", state)
	}
	if calls := fetcher.calls.Load(); calls != 0 {
		t.Fatalf("fetched %d times, want 0", calls)
	}
}

func TestNonVideoWithoutAssetIsImmediatelyUnavailable(t *testing.T) {
	t.Parallel()
	fetcher := &mockFetcher{}
	poller := newPoller(fetcher)

	ev := bridge.InboundEvent{MessageID: "msg-1", Type: bridge.MessageImage}
	if state := poller.Resolve(context.Background(), &ev); state != bridge.MediaUnavailable {
		t.Fatalf("state = %v, want MediaUnavailable", state)
	}
	if calls := fetcher.calls.Load(); calls != 0 {
		t.Fatalf("fetched %d times, want 0 (no polling for non-video)", calls)
	}
}

func TestVideoResolvesOnSecondPoll(t *testing.T) {
	t.Parallel()
	fetcher := &mockFetcher{resolveOn: 2, url: "https://cdn.example/v.mp4"}
	poller := newPoller(fetcher)

	ev := bridge.InboundEvent{MessageID: "msg-1", Type: bridge.MessageVideo}
	if state := poller.Resolve(context.Background(), &ev); state != bridge.MediaResolved {
		t.Fatalf("state = %v, want MediaResolved", state)
	}
	if ev.File == nil || ev.File.URL != "https://cdn.example/v.mp4" {
		t.Fatalf("File = %+v, want refreshed asset", ev.File)
	}
	if calls := fetcher.calls.Load(); calls != 2 {
		t.Fatalf("fetched %d times, want 2", calls)
	}
}

func TestPollBudgetExhausted(t *testing.T) {
	t.Parallel()
	fetcher := &mockFetcher{}
	poller := newPoller(fetcher)

	ev := bridge.InboundEvent{MessageID: "msg-1", Type: bridge.MessageVideo}
	if state := poller.Resolve(context.Background(), &ev); state != bridge.MediaUnavailable {
		t.Fatalf("state = %v, want MediaUnavailable", state)
	}
	if calls := fetcher.calls.Load(); calls != 2 {
		t.Fatalf("fetched %d times, want 2", calls)
	}
}
