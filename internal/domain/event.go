package domain

import (
	"encoding/json"
	"time"
)

// EventID is a unique identifier for a journal event.
type EventID string

// String returns the string representation of the EventID.
func (id EventID) String() string {
	return string(id)
}

// EventSeverity represents the severity level of a journal event.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
	EventSeveritySuccess EventSeverity = "success"
)

// EventCategory represents the category of a journal event for filtering.
type EventCategory string

const (
	EventCategoryDownload EventCategory = "download"
	EventCategoryRelay    EventCategory = "relay"
	EventCategoryFallback EventCategory = "fallback"
	EventCategoryNotify   EventCategory = "notify"
	EventCategorySystem   EventCategory = "system"
)

// Event is one entry of the server's activity journal.
type Event struct {
	ID        EventID         `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  EventSeverity   `json:"severity"`
	Category  EventCategory   `json:"category"`
	Message   string          `json:"message"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// EventMetadata is a helper type for building event metadata.
type EventMetadata map[string]interface{}

// ToJSON converts metadata to JSON for storage.
func (m EventMetadata) ToJSON() json.RawMessage {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// EventFilter specifies criteria for querying journal events.
type EventFilter struct {
	Severity   *EventSeverity `json:"severity,omitempty"`
	Category   *EventCategory `json:"category,omitempty"`
	Source     string         `json:"source,omitempty"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	SearchText string         `json:"search_text,omitempty"`
}

// EventQuery is a filtered, paginated journal query.
type EventQuery struct {
	Filter EventFilter
	Limit  int
	Offset int
}

// EventQueryResult holds a page of journal events.
type EventQueryResult struct {
	Events  []Event
	Total   int
	HasMore bool
}

// Notification is a fire-and-forget message for the push channel. Delivery
// is at-most-once and carries no ordering guarantee relative to the byte
// stream it describes.
type Notification struct {
	Room        string `json:"-"`
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
}
