// Package bridge implements the inbound webhook pipeline: deduplication,
// cached channel and contact resolution, delayed-media polling, and parallel
// fan-out to every desk channel subscribed to the originating service.
package bridge

import (
	"encoding/json"
	"strings"
)

// MessageType classifies the payload of an inbound event.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
	MessageSticker  MessageType = "sticker"
	MessageTicket   MessageType = "ticket"
	MessageChat     MessageType = "chat"
)

// Internal provider bookkeeping categories that never reach the desk.
func (t MessageType) Internal() bool {
	return t == MessageTicket || t == MessageChat
}

// Media reports whether the type carries a file payload.
func (t MessageType) Media() bool {
	switch t {
	case MessageImage, MessageAudio, MessageVideo, MessageDocument, MessageSticker:
		return true
	}
	return false
}

// EventMessageReceived is the provider event tag for a new message callback.
const EventMessageReceived = "message.received"

// WebhookPayload is the raw body of an inbound provider webhook.
// Data may be an object or an array; only the first element is processed.
type WebhookPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FileRef points at a media asset hosted by the provider.
type FileRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Location is a shared-position payload.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContactCard is a shared-contact payload.
type ContactCard struct {
	DisplayName string   `json:"displayName,omitempty"`
	Phones      []string `json:"phones,omitempty"`
}

// InboundEvent is the raw message payload delivered by the provider webhook.
// It is constructed per request and immutable once normalization begins,
// except for the media poller refreshing File from a later message detail.
type InboundEvent struct {
	MessageID string       `json:"messageId"`
	From      string       `json:"from"`
	ChatID    string       `json:"chatId,omitempty"`
	ServiceID string       `json:"serviceId"`
	UserID    string       `json:"userId,omitempty"`
	Type      MessageType  `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Text      string       `json:"text,omitempty"`
	Caption   string       `json:"caption,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	SenderName string      `json:"senderName,omitempty"`
	File      *FileRef     `json:"file,omitempty"`
	Location  *Location    `json:"location,omitempty"`
	Contact   *ContactCard `json:"contact,omitempty"`
	IsFromMe  bool         `json:"isFromMe,omitempty"`
}

// Content returns the textual content used in the dedup fingerprint.
func (e InboundEvent) Content() string {
	if text := strings.TrimSpace(e.Text); text != "" {
		return text
	}
	if caption := strings.TrimSpace(e.Caption); caption != "" {
		return caption
	}
	if e.File != nil {
		return strings.TrimSpace(e.File.URL)
	}
	return ""
}

// HasAsset reports whether the event already carries a usable media URL.
func (e InboundEvent) HasAsset() bool {
	return e.File != nil && strings.TrimSpace(e.File.URL) != ""
}

// ChannelConfig is one desk channel subscribed to one provider service
// account. Immutable once fetched; refreshed only by cache expiry.
type ChannelConfig struct {
	ChannelID   string `json:"channelId"`
	Token       string `json:"token"`
	ServiceID   string `json:"serviceId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// ContactProfile is the normalized customer identity attached to a delivery.
type ContactProfile struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Language    string `json:"language,omitempty"`
}

// MessageKind tags the normalized outbound message union.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindMedia      MessageKind = "media"
	KindLocation   MessageKind = "location"
	KindQuickReply MessageKind = "quick_reply"
)

// Normalized is the outbound message sum type. Implementations are
// constructed once during normalization and immutable thereafter.
type Normalized interface {
	Kind() MessageKind
}

// TextMessage is a plain text delivery.
type TextMessage struct {
	Text string `json:"text"`
}

func (TextMessage) Kind() MessageKind { return KindText }

// MediaMessage is a media delivery referencing a provider-hosted asset.
type MediaMessage struct {
	Media    MessageType `json:"media"`
	URL      string      `json:"url"`
	MimeType string      `json:"mimeType,omitempty"`
	Name     string      `json:"name,omitempty"`
	Caption  string      `json:"caption,omitempty"`
}

func (MediaMessage) Kind() MessageKind { return KindMedia }

// LocationMessage is a shared-position delivery.
type LocationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

func (LocationMessage) Kind() MessageKind { return KindLocation }

// QuickReplyMessage is a text delivery with tappable options.
type QuickReplyMessage struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

func (QuickReplyMessage) Kind() MessageKind { return KindQuickReply }

// Delivery is one normalized event bound for one desk channel.
type Delivery struct {
	MessageID string         `json:"messageId"`
	ServiceID string         `json:"serviceId"`
	UserID    string         `json:"userId,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Echo      bool           `json:"echo,omitempty"`
	Contact   ContactProfile `json:"contact"`
	Message   Normalized     `json:"message"`
}

// DispatchResult is the outcome of one (event, channel) delivery.
type DispatchResult struct {
	ChannelID string
	Success   bool
	Err       error
}

// Summary aggregates the per-channel results of one fan-out.
type Summary struct {
	Total   int
	Success int
	Errors  int
	Results []DispatchResult
}
