package notifications

import (
	"time"
)

// Review event types pushed to document subscribers.
const (
	EventWorkflowTransitioned = "workflow_transitioned"
	EventFeedbackSubmitted    = "feedback_submitted"
	EventFeedbackRejected     = "feedback_rejected"
	EventChangeApplied        = "change_applied"
	EventConflictResolved     = "conflict_resolved"
	// EventAuditGap reports a committed change whose audit entries could not be stored.
	EventAuditGap = "audit_gap"
)

// Message types exchanged with websocket clients.
const (
	WSMessageTypeEvent  = "event"
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
)

// Event describes a committed change to a document.
type Event struct {
	Type        string    `json:"type"`
	DocumentID  string    `json:"document_id"`
	ActorUserID string    `json:"actor_user_id"`
	Data        any       `json:"data,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// WebSocketMessage is the frame written to subscribers.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Event     *Event    `json:"event,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events to whoever is listening.
type Publisher interface {
	Publish(ev Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
