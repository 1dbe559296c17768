package bridge

import (
	"fmt"
	"strings"
)

// Normalize builds the immutable delivery payload for ev. mediaState decides
// whether a media event carries its asset or a textual fallback.
func Normalize(ev InboundEvent, contact ContactProfile, mediaState MediaState) (Delivery, error) {
	msg, err := normalizeMessage(ev, mediaState)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{
		MessageID: ev.MessageID,
		ServiceID: ev.ServiceID,
		UserID:    ev.UserID,
		Timestamp: ev.Timestamp,
		Echo:      ev.IsFromMe,
		Contact:   contact,
		Message:   msg,
	}, nil
}

func normalizeMessage(ev InboundEvent, mediaState MediaState) (Normalized, error) {
	switch {
	case ev.Type == MessageText:
		return TextMessage{Text: ev.Text}, nil

	case ev.Type == MessageLocation:
		if ev.Location == nil {
			return nil, fmt.Errorf("location event %s has no location payload", ev.MessageID)
		}
		return LocationMessage{
			Latitude:  ev.Location.Latitude,
			Longitude: ev.Location.Longitude,
			Name:      ev.Location.Name,
			Address:   ev.Location.Address,
		}, nil

	case ev.Type == MessageContact:
		return TextMessage{Text: contactCardText(ev.Contact)}, nil

	case ev.Type.Media():
		if mediaState == MediaResolved && ev.File != nil {
			return MediaMessage{
				Media:    ev.Type,
				URL:      ev.File.URL,
				MimeType: ev.File.MimeType,
				Name:     ev.File.Name,
				Caption:  ev.Caption,
			}, nil
		}
		return TextMessage{Text: MediaFallbackText(ev.Type)}, nil

	default:
		return nil, fmt.Errorf("unsupported message type %q", ev.Type)
	}
}

// MediaFallbackText is the placeholder delivered when an asset never became
// available within the poll budget.
func MediaFallbackText(t MessageType) string {
	return fmt.Sprintf("[%s received, asset unavailable]", t)
}

func contactCardText(card *ContactCard) string {
	if card == nil {
		return "[contact received]"
	}
	parts := make([]string, 0, 2)
	if name := strings.TrimSpace(card.DisplayName); name != "" {
		parts = append(parts, name)
	}
	if len(card.Phones) > 0 {
		parts = append(parts, strings.Join(card.Phones, ", "))
	}
	if len(parts) == 0 {
		return "[contact received]"
	}
	return "Contact: " + strings.Join(parts, " / ")
}
