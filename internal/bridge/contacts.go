package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/loopdesk/wabridge/internal/cache"
)

type contactDirectory interface {
	GetContact(ctx context.Context, contactID string) (ContactProfile, error)
}

// ContactResolver turns the event's sender identifier into a normalized
// phone number and profile. The common case never touches the network: most
// payloads already carry a usable number in their own fields.
type ContactResolver struct {
	dir         contactDirectory
	cache       *cache.Cache[ContactProfile]
	ttl         time.Duration
	countryCode string
	logger      *slog.Logger
}

// NewContactResolver creates a resolver caching profile lookups for ttl.
// countryCode is prefixed onto numbers lacking a leading marker.
func NewContactResolver(log *slog.Logger, dir contactDirectory, ttl time.Duration, countryCode string) *ContactResolver {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = "55"
	}
	return &ContactResolver{
		dir:         dir,
		cache:       cache.New[ContactProfile](ttl, ttl),
		ttl:         ttl,
		countryCode: countryCode,
		logger:      log.With(slog.String("component", "contacts")),
	}
}

// Resolve returns the contact for ev. It never fails: lookup errors degrade
// to the raw identifier, since partial delivery beats a silent drop.
func (r *ContactResolver) Resolve(ctx context.Context, ev InboundEvent) ContactProfile {
	candidate := strings.TrimSpace(ev.From)
	if ev.IsFromMe {
		// Echo events name the agent as sender; the customer is the chat peer.
		candidate = strings.TrimSpace(ev.ChatID)
	}

	if !ev.IsFromMe {
		if phone, ok := extractPhone(ev.Phone, candidate); ok {
			return ContactProfile{
				PhoneNumber: r.normalize(phone),
				Name:        strings.TrimSpace(ev.SenderName),
				CountryCode: r.countryCode,
			}
		}
	}

	profile, ok := r.lookup(ctx, candidate)
	if !ok {
		fallback, _ := extractPhone(candidate)
		if fallback == "" {
			fallback = candidate
		}
		return ContactProfile{
			PhoneNumber: r.normalize(fallback),
			Name:        strings.TrimSpace(ev.SenderName),
			CountryCode: r.countryCode,
		}
	}
	profile.PhoneNumber = r.normalize(profile.PhoneNumber)
	if profile.CountryCode == "" {
		profile.CountryCode = r.countryCode
	}
	return profile
}

// CacheSize exposes the profile-cache entry count for /metrics.
func (r *ContactResolver) CacheSize() int {
	return r.cache.Size()
}

func (r *ContactResolver) lookup(ctx context.Context, contactID string) (ContactProfile, bool) {
	if contactID == "" {
		return ContactProfile{}, false
	}
	if profile, ok := r.cache.Get(contactID); ok {
		return profile, true
	}
	profile, err := r.dir.GetContact(ctx, contactID)
	if err != nil {
		r.logger.Warn("contact lookup failed, using raw identifier",
			"contact_id", contactID,
			"error", err,
		)
		return ContactProfile{}, false
	}
	if strings.TrimSpace(profile.PhoneNumber) == "" {
		return ContactProfile{}, false
	}
	r.cache.Set(contactID, profile, r.ttl)
	return profile, true
}

// extractPhone scans candidate identifiers for a value already shaped like a
// destination number: 10 to 15 digits after stripping the provider's JID
// suffix and separators.
func extractPhone(candidates ...string) (string, bool) {
	for _, candidate := range candidates {
		digits := digitsOf(candidate)
		if len(digits) >= 10 && len(digits) <= 15 {
			return digits, true
		}
	}
	return "", false
}

func digitsOf(value string) string {
	value = strings.TrimSpace(value)
	if at := strings.IndexByte(value, '@'); at >= 0 {
		value = value[:at]
	}
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalize guarantees a leading + country-code marker. Numbers that already
// begin with the configured country code and carry more digits than a
// national number are taken as fully qualified.
func (r *ContactResolver) normalize(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	digits := digitsOf(phone)
	if digits == "" {
		return phone
	}
	if strings.HasPrefix(digits, r.countryCode) && len(digits) > 11 {
		return "+" + digits
	}
	return "+" + r.countryCode + digits
}
