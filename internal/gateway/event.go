package gateway

import (
	"errors"

	"github.com/tidwall/gjson"
)

// EventType is the discriminant of an inbound frame.
type EventType string

// EventNotification is the only type the client acts on.
const EventNotification EventType = "notification"

// ErrMalformedFrame marks a frame that is not a JSON object.
var ErrMalformedFrame = errors.New("malformed frame")

// Event is a decoded inbound frame. Raw keeps the full payload so
// consumers can read fields beyond type and message.
type Event struct {
	Type    EventType
	Message string
	Raw     []byte
}

// Decode parses a frame. Any valid JSON object is an event, whatever its
// type; everything else is ErrMalformedFrame.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return Event{}, ErrMalformedFrame
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Event{}, ErrMalformedFrame
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return Event{
		Type:    EventType(doc.Get("type").String()),
		Message: doc.Get("message").String(),
		Raw:     raw,
	}, nil
}

// Field returns an arbitrary field of the raw payload by gjson path.
func (e Event) Field(path string) gjson.Result {
	return gjson.GetBytes(e.Raw, path)
}
