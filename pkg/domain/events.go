package domain

import "time"

// EventType defines the category of the event.
type EventType string

const (
	EventFlowOpened       EventType = "flow_opened"
	EventFlowReloaded     EventType = "flow_reloaded"
	EventNavigated        EventType = "navigated"
	EventEdited           EventType = "edited"
	EventModeChanged      EventType = "mode_changed"
	EventSaveStarted      EventType = "save_started"
	EventSaveSucceeded    EventType = "save_succeeded"
	EventSaveFailed       EventType = "save_failed"
	EventCredentialPurged EventType = "credential_purged"
)

// Event is emitted by the engines whenever state a renderer shows has changed.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Identity  string    `json:"identity"`
	NodeID    string    `json:"node_id,omitempty"`
	Op        string    `json:"op,omitempty"`
	Version   string    `json:"version,omitempty"`
	Err       error     `json:"-"`
}

// Observer receives events. It is called synchronously and must not block.
type Observer func(Event)

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, identity string) Event {
	return Event{Timestamp: time.Now(), Type: t, Identity: identity}
}
