package models

import (
	"time"
)

// EventKind names a notification lifecycle transition.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRead    EventKind = "read"
	EventReadAll EventKind = "read_all"
	EventDeleted EventKind = "deleted"
)

// Event records one state change of the notification store
type Event struct {
	Kind           EventKind     `json:"kind"`
	NotificationID string        `json:"notification_id,omitempty"`
	Notification   *Notification `json:"notification,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// Envelope wraps an Event with routing metadata for the event feed
type Envelope struct {
	Event *Event `json:"event"`

	ReceivedAt   time.Time `json:"received_at"`
	Node         string    `json:"node"`
	BatchID      string    `json:"batch_id,omitempty"`
	BatchIndex   int       `json:"batch_index,omitempty"`
	RetryCount   int       `json:"retry_count"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope for an event raised in session.
func NewEnvelope(event *Event, session, node string) *Envelope {
	return &Envelope{
		Event:        event,
		ReceivedAt:   time.Now().UTC(),
		Node:         node,
		PartitionKey: session, // keep one session's events ordered
	}
}

// WithBatch sets batch metadata on the envelope
func (e *Envelope) WithBatch(batchID string, index int) *Envelope {
	e.BatchID = batchID
	e.BatchIndex = index
	return e
}
