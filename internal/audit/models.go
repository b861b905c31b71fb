package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindTransition        Kind = "transition"
	KindFeedbackSubmitted Kind = "feedback_submitted"
	KindFeedbackRejected  Kind = "feedback_rejected"
	KindChangeApplied     Kind = "change_applied"
	KindConflictResolved  Kind = "conflict_resolved"
)

// Entry is one immutable audit record.
type Entry struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  string         `gorm:"type:uuid;not null;uniqueIndex:idx_audit_document_sequence" json:"document_id"`
	Sequence    int64          `gorm:"not null;uniqueIndex:idx_audit_document_sequence" json:"sequence"`
	Kind        Kind           `gorm:"not null" json:"kind"`
	ActorUserID string         `gorm:"not null" json:"actor_user_id"`
	ActorRole   string         `gorm:"not null" json:"actor_role"`
	Summary     string         `json:"summary"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	At          time.Time      `gorm:"not null;index" json:"at"`
}

func (Entry) TableName() string {
	return "audit_entries"
}

// NewEntry builds an entry with a fresh id, encoding payload as JSON.
func NewEntry(documentID string, kind Kind, userID, role, summary string, payload any, at time.Time) (Entry, error) {
	e := Entry{
		ID:          uuid.New().String(),
		DocumentID:  documentID,
		Kind:        kind,
		ActorUserID: userID,
		ActorRole:   role,
		Summary:     summary,
		At:          at.UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to encode audit payload: %w", err)
		}
		e.Payload = datatypes.JSON(raw)
	}
	return e, nil
}

// Store is append-only: entries can be added and listed, never changed.
type Store interface {
	Append(ctx context.Context, entries ...Entry) error
	List(ctx context.Context, documentID string) ([]Entry, error)
}
