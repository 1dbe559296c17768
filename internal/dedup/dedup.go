// Package dedup provides the inbound-message idempotency store. The provider
// redelivers webhooks it believes were not acknowledged, so every logical
// message is fingerprinted and checked before any downstream work happens.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const contentPrefixLen = 32

// Identity holds the fields that define a logical message. Two redeliveries
// of the same message carry identical identities; two distinct messages do
// not, except by hash overlap.
type Identity struct {
	MessageID string
	From      string
	ServiceID string
	Timestamp int64
	Content   string
}

// Fingerprint derives the dedup key. ServiceID is part of the fingerprint so
// identical content arriving on different service accounts never collides.
func Fingerprint(id Identity) string {
	content := id.Content
	if len(content) > contentPrefixLen {
		content = content[:contentPrefixLen]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s", id.MessageID, id.From, id.ServiceID, id.Timestamp, content)))
	return hex.EncodeToString(sum[:])
}

type record struct {
	seenAt    time.Time
	messageID string
	from      string
	meta      map[string]string
}

// Store answers "have I already fully processed this logical message" within
// a freshness window. A background sweep bounds growth under low traffic.
type Store struct {
	mu      sync.Mutex
	entries map[string]record
	ttl     time.Duration

	hits   atomic.Int64
	checks atomic.Int64

	stop chan struct{}
	once sync.Once
}

// NewStore creates a store with the given freshness window and starts a
// sweeper that runs every sweepInterval.
func NewStore(ttl, sweepInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &Store{
		entries: make(map[string]record),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// IsDuplicate reports whether id was marked processed within the freshness
// window, incrementing the hit counter on a positive answer.
func (s *Store) IsDuplicate(id Identity) bool {
	s.checks.Add(1)
	key := Fingerprint(id)

	s.mu.Lock()
	rec, ok := s.entries[key]
	s.mu.Unlock()

	if !ok || time.Since(rec.seenAt) > s.ttl {
		return false
	}
	s.hits.Add(1)
	return true
}

// MarkProcessed unconditionally records id, overwriting any prior entry so a
// message can be re-marked after retries without being treated as stale.
func (s *Store) MarkProcessed(id Identity, meta map[string]string) {
	key := Fingerprint(id)
	s.mu.Lock()
	s.entries[key] = record{
		seenAt:    time.Now(),
		messageID: id.MessageID,
		from:      id.From,
		meta:      meta,
	}
	s.mu.Unlock()
}

// Size returns the current entry count, including entries awaiting sweep.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats describes the store for the metrics endpoint.
type Stats struct {
	Size    int     `json:"size"`
	Checks  int64   `json:"checks"`
	Hits    int64   `json:"hits"`
	HitRate float64 `json:"hit_rate"`
}

// Stats snapshots the store counters.
func (s *Store) Stats() Stats {
	st := Stats{
		Size:   s.Size(),
		Checks: s.checks.Load(),
		Hits:   s.hits.Load(),
	}
	if st.Checks > 0 {
		st.HitRate = float64(st.Hits) / float64(st.Checks)
	}
	return st
}

// Close stops the background sweeper.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)
			s.mu.Lock()
			for key, rec := range s.entries {
				if rec.seenAt.Before(cutoff) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}
