package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/loopdesk/wabridge/internal/retry"
)

// MediaState is the outcome of media-availability resolution.
type MediaState int

const (
	// MediaResolved means the event carries a usable asset URL.
	MediaResolved MediaState = iota
	// MediaUnavailable means no asset could be obtained within budget.
	MediaUnavailable
)

type messageFetcher interface {
	GetMessage(ctx context.Context, messageID string) (InboundEvent, error)
}

// MediaPoller re-queries the provider message-detail endpoint for an asset
// URL that was not yet attached when the webhook fired. Large media (video)
// is processed asynchronously upstream, so a freshly received event may
// reference an asset that only exists moments later.
type MediaPoller struct {
	fetcher  messageFetcher
	attempts int
	delay    time.Duration
	retry    *retry.Executor
	logger   *slog.Logger
}

// NewMediaPoller creates a poller issuing up to attempts re-queries, each
// preceded by delay.
func NewMediaPoller(log *slog.Logger, fetcher messageFetcher, exec *retry.Executor, attempts int, delay time.Duration) *MediaPoller {
	if log == nil {
		log = slog.Default()
	}
	if attempts <= 0 {
		attempts = 2
	}
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &MediaPoller{
		fetcher:  fetcher,
		attempts: attempts,
		delay:    delay,
		retry:    exec,
		logger:   log.With(slog.String("component", "mediapoll")),
	}
}

// Resolve drives the availability state machine for ev. Only video enters
// the polling state; other media types without an asset are immediately
// unavailable, and the caller drops the event since the provider redelivers
// once the asset is ready. On resolution ev's file fields are overwritten
// with the fresher payload.
func (p *MediaPoller) Resolve(ctx context.Context, ev *InboundEvent) MediaState {
	if ev.HasAsset() {
		return MediaResolved
	}
	if ev.Type != MessageVideo {
		return MediaUnavailable
	}

	for attempt := 1; attempt <= p.attempts; attempt++ {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return MediaUnavailable
		}

		var detail InboundEvent
		err := p.retry.Do(ctx, func(ctx context.Context) error {
			fresh, err := p.fetcher.GetMessage(ctx, ev.MessageID)
			if err != nil {
				return err
			}
			detail = fresh
			return nil
		}, retry.Context{Op: "provider.poll_media", CorrelationID: ev.MessageID})
		if err != nil {
			p.logger.Warn("media poll attempt failed",
				"message_id", ev.MessageID,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		if detail.HasAsset() {
			ev.File = detail.File
			if strings.TrimSpace(detail.Caption) != "" {
				ev.Caption = detail.Caption
			}
			p.logger.Debug("media resolved",
				"message_id", ev.MessageID,
				"attempt", attempt,
			)
			return MediaResolved
		}
	}

	p.logger.Info("media still unavailable after polling",
		"message_id", ev.MessageID,
		"attempts", p.attempts,
	)
	return MediaUnavailable
}
