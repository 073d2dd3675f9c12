package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Event is a release announcement parsed from a single log line.
// It is never stored on its own, only serialized into record payloads.
type Event struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	AnnouncedAt time.Time `json:"announced_at"`
	URL         string    `json:"url"`

	// Optional fields, nil when the announce line did not carry them
	Size  *int64  `json:"size,omitempty"`
	Genre *string `json:"genre,omitempty"`
}

// Payload serializes the event for storage in a record
func (e *Event) Payload() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %s: %w", e.Name, err)
	}
	return string(data), nil
}

// DecodeEvent restores an event from a record payload
func DecodeEvent(payload string) (*Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return &event, nil
}

// payloadURL returns the download URL stored in a payload, or "" if the
// payload cannot be decoded.
func payloadURL(payload string) string {
	event, err := DecodeEvent(payload)
	if err != nil {
		return ""
	}
	return event.URL
}
