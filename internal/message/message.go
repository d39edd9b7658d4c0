package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for message timestamps. It
// matches what browsers produce for Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// EventMessage is the only inbound event type acted upon by clients.
const EventMessage = "message"

// ErrMalformedEvent is returned by ParseEvent for frames that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed event")

// Message is a chat message. Two messages with the same ID are the same
// logical message regardless of their other fields.
type Message struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// Draft is a message that has not been assigned an ID by the server yet.
type Draft struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// WithID returns the message the draft becomes once the server assigns id.
func (d Draft) WithID(id int64) Message {
	return Message{
		ID:        id,
		Text:      d.Text,
		Username:  d.Username,
		Timestamp: d.Timestamp,
	}
}

// Matches reports whether m carries the same content as d.
func (d Draft) Matches(m Message) bool {
	return d.Text == m.Text && d.Username == m.Username && d.Timestamp == m.Timestamp
}

// Timestamp formats t with TimestampLayout in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Event is the JSON envelope sent over the live channel.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	// Message is populated by ParseEvent when Type is EventMessage.
	Message Message `json:"-"`
}

// ParseEvent decodes a live channel frame. Events of unknown type decode
// without error so callers can ignore them. A message event must carry a
// positive id and non-empty text.
func ParseEvent(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type != EventMessage {
		return ev, nil
	}
	if len(ev.Data) == 0 {
		return Event{}, fmt.Errorf("%w: message event without data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(ev.Data, &ev.Message); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Message.ID <= 0 {
		return Event{}, fmt.Errorf("%w: message id %d", ErrMalformedEvent, ev.Message.ID)
	}
	if ev.Message.Text == "" {
		return Event{}, fmt.Errorf("%w: message %d has no text", ErrMalformedEvent, ev.Message.ID)
	}
	return ev, nil
}

// NewMessageEvent encodes m as a "message" frame.
func NewMessageEvent(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: EventMessage, Data: data})
}
