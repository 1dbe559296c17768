package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loopdesk/wabridge/internal/retry"
)

type deliverer interface {
	Deliver(ctx context.Context, ch ChannelConfig, d Delivery) error
}

// Dispatcher fans one delivery out to every subscribed channel concurrently.
// Each channel's delivery is retry-wrapped independently, so one channel's
// failure never affects its siblings or aborts the event.
type Dispatcher struct {
	desk   deliverer
	retry  *retry.Executor
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher delivering through desk.
func NewDispatcher(log *slog.Logger, desk deliverer, exec *retry.Executor) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		desk:   desk,
		retry:  exec,
		logger: log.With(slog.String("component", "fanout")),
	}
}

// Dispatch sends d to every channel in parallel and waits for all to settle.
// Partial failure is reported in the summary, never escalated.
func (f *Dispatcher) Dispatch(ctx context.Context, d Delivery, channels []ChannelConfig) Summary {
	results := make([]DispatchResult, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch ChannelConfig) {
			defer wg.Done()
			err := f.retry.Do(ctx, func(ctx context.Context) error {
				return f.desk.Deliver(ctx, ch, d)
			}, retry.Context{
				Op:            "desk.deliver",
				CorrelationID: d.MessageID + ":" + ch.ChannelID,
			})
			results[i] = DispatchResult{
				ChannelID: ch.ChannelID,
				Success:   err == nil,
				Err:       err,
			}
			if err != nil {
				f.logger.Error("channel delivery failed",
					"message_id", d.MessageID,
					"channel_id", ch.ChannelID,
					"error", err,
				)
			}
		}(i, ch)
	}
	wg.Wait()

	summary := Summary{Total: len(channels), Results: results}
	for _, res := range results {
		if res.Success {
			summary.Success++
		} else {
			summary.Errors++
		}
	}
	return summary
}
