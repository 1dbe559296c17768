package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/loopdesk/wabridge/internal/cache"
)

type channelDirectory interface {
	ListChannels(ctx context.Context) ([]ChannelConfig, error)
}

// ChannelResolver maps a provider service id to the desk channels subscribed
// to it, cache-first. An empty result means "ignore this event", not an error.
type ChannelResolver struct {
	dir    channelDirectory
	cache  *cache.Cache[[]ChannelConfig]
	ttl    time.Duration
	logger *slog.Logger
}

// NewChannelResolver creates a resolver caching routing lookups for ttl.
func NewChannelResolver(log *slog.Logger, dir channelDirectory, ttl time.Duration) *ChannelResolver {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChannelResolver{
		dir:    dir,
		cache:  cache.New[[]ChannelConfig](ttl, ttl),
		ttl:    ttl,
		logger: log.With(slog.String("component", "channels")),
	}
}

// ChannelsByServiceID returns every channel subscribed to serviceID.
func (r *ChannelResolver) ChannelsByServiceID(ctx context.Context, serviceID string) ([]ChannelConfig, error) {
	if channels, ok := r.cache.Get("service:" + serviceID); ok {
		return channels, nil
	}
	all, err := r.refresh(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]ChannelConfig, 0, len(all))
	for _, ch := range all {
		if ch.ServiceID == serviceID {
			matched = append(matched, ch)
		}
	}
	r.cache.Set("service:"+serviceID, matched, r.ttl)
	return matched, nil
}

// ChannelByID resolves a single channel by its own identifier, used by the
// desk-triggered outbound send path.
func (r *ChannelResolver) ChannelByID(ctx context.Context, channelID string) (ChannelConfig, bool, error) {
	if channels, ok := r.cache.Get("channel:" + channelID); ok && len(channels) == 1 {
		return channels[0], true, nil
	}
	all, err := r.refresh(ctx)
	if err != nil {
		return ChannelConfig{}, false, err
	}
	for _, ch := range all {
		if ch.ChannelID == channelID {
			r.cache.Set("channel:"+channelID, []ChannelConfig{ch}, r.ttl)
			return ch, true, nil
		}
	}
	return ChannelConfig{}, false, nil
}

// ChannelByToken resolves a channel by its bearer token, for sends that omit
// the channel id.
func (r *ChannelResolver) ChannelByToken(ctx context.Context, token string) (ChannelConfig, bool, error) {
	if token == "" {
		return ChannelConfig{}, false, nil
	}
	all, err := r.refresh(ctx)
	if err != nil {
		return ChannelConfig{}, false, err
	}
	for _, ch := range all {
		if ch.Token == token {
			return ch, true, nil
		}
	}
	return ChannelConfig{}, false, nil
}

// CacheSize exposes the routing-cache entry count for /metrics.
func (r *ChannelResolver) CacheSize() int {
	return r.cache.Size()
}

func (r *ChannelResolver) refresh(ctx context.Context) ([]ChannelConfig, error) {
	all, err := r.dir.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("channel directory refreshed", "channels", len(all))
	return all, nil
}
