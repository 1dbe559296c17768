package bridge_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopdesk/wabridge/internal/bridge"
)

type mockContacts struct {
	profiles map[string]bridge.ContactProfile
	calls    atomic.Int32
}

func (m *mockContacts) GetContact(ctx context.Context, contactID string) (bridge.ContactProfile, error) {
	m.calls.Add(1)
	profile, ok := m.profiles[contactID]
	if !ok {
		return bridge.ContactProfile{}, errors.New("not found")
	}
	return profile, nil
}

func newContactResolver(dir *mockContacts) *bridge.ContactResolver {
	return bridge.NewContactResolver(nil, dir, time.Minute, "55")
}

func TestFastPathSkipsLookup(t *testing.T) {
	t.Parallel()
	dir := &mockContacts{}
	resolver := newContactResolver(dir)

	ev := bridge.InboundEvent{
		From:       "5511999990000@c.us",
		SenderName: "Maria",
	}
	got := resolver.Resolve(context.Background(), ev)
	if got.PhoneNumber != "+5511999990000" {
		t.Fatalf("PhoneNumber = %q, want +5511999990000", got.PhoneNumber)
	}
	if got.Name != "Maria" {
		t.Fatalf("Name = %q, want Maria", got.Name)
	}
	if calls := dir.calls.Load(); calls != 0 {
		t.Fatalf("lookup performed %d times, want 0", calls)
	}
}

func TestAgentOriginatedUsesLookup(t *testing.T) {
	t.Parallel()
	dir := &mockContacts{profiles: map[string]bridge.ContactProfile{
		"5511888880000@c.us": {PhoneNumber: "5511888880000", Name: "Customer"},
	}}
	resolver := newContactResolver(dir)

	ev := bridge.InboundEvent{
		From:     "agent-42",
		ChatID:   "5511888880000@c.us",
		IsFromMe: true,
	}
	got := resolver.Resolve(context.Background(), ev)
	if got.PhoneNumber != "+5511888880000" {
		t.Fatalf("PhoneNumber = %q, want +5511888880000", got.PhoneNumber)
	}
	if calls := dir.calls.Load(); calls != 1 {
		t.Fatalf("lookup performed %d times, want 1", calls)
	}
}

func TestLookupCached(t *testing.T) {
	t.Parallel()
	dir := &mockContacts{profiles: map[string]bridge.ContactProfile{
		"5511888880000@c.us": {PhoneNumber: "5511888880000"},
	}}
	resolver := newContactResolver(dir)

	ev := bridge.InboundEvent{ChatID: "5511888880000@c.us", IsFromMe: true}
	resolver.Resolve(context.Background(), ev)
	resolver.Resolve(context.Background(), ev)
	if calls := dir.calls.Load(); calls != 1 {
		t.Fatalf("lookup performed %d times, want 1", calls)
	}
}

func TestLookupFailureFallsBackToRawIdentifier(t *testing.T) {
	t.Parallel()
	dir := &mockContacts{}
	resolver := newContactResolver(dir)

	ev := bridge.InboundEvent{ChatID: "5511777770000@c.us", IsFromMe: true}
	got := resolver.Resolve(context.Background(), ev)
	if got.PhoneNumber != "+5511777770000" {
		t.Fatalf("PhoneNumber = %q, want fallback +5511777770000", got.PhoneNumber)
	}
}

func TestNationalNumberGetsCountryCode(t *testing.T) {
	t.Parallel()
	dir := &mockContacts{}
	resolver := newContactResolver(dir)

	ev := bridge.InboundEvent{From: "11999990000"}
	got := resolver.Resolve(context.Background(), ev)
	if got.PhoneNumber != "+5511999990000" {
		t.Fatalf("PhoneNumber = %q, want +5511999990000", got.PhoneNumber)
	}
}

func TestShortIdentifierTriggersLookup(t *testing.T) {
	t.Parallel()
	dir := &mockContacts{profiles: map[string]bridge.ContactProfile{
		"short-id": {PhoneNumber: "+5511666660000", Name: "Looked Up"},
	}}
	resolver := newContactResolver(dir)

	ev := bridge.InboundEvent{From: "short-id"}
	got := resolver.Resolve(context.Background(), ev)
	if got.PhoneNumber != "+5511666660000" {
		t.Fatalf("PhoneNumber = %q, want +5511666660000", got.PhoneNumber)
	}
	if calls := dir.calls.Load(); calls != 1 {
		t.Fatalf("lookup performed %d times, want 1", calls)
	}
}
