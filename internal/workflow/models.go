package workflow

import (
	"slices"
	"time"

	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionReset    Direction = "reset"
)

// Instance is one run of the workflow for a document. At most one instance is active.
type Instance struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	CurrentStage workflows.StageID `json:"current_stage"`
	IsActive     bool              `json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
	ArchivedAt   *time.Time        `json:"archived_at,omitempty"`
}

// TransitionRecord is an append-only history entry.
type TransitionRecord struct {
	ID          string            `json:"id"`
	InstanceID  string            `json:"instance_id"`
	FromStage   workflows.StageID `json:"from_stage"`
	ToStage     workflows.StageID `json:"to_stage"`
	ActorUserID string            `json:"actor_user_id"`
	ActorRole   workflows.Role    `json:"actor_role"`
	Direction   Direction         `json:"direction"`
	Reason      string            `json:"reason,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// State is the workflow part of a document: all instances and the full transition history.
type State struct {
	Instances []Instance         `json:"instances"`
	History   []TransitionRecord `json:"history"`
}

// Active returns the active instance.
func (s *State) Active() (*Instance, bool) {
	for i := range s.Instances {
		if s.Instances[i].IsActive {
			return &s.Instances[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (s *State) Clone() State {
	c := State{
		Instances: slices.Clone(s.Instances),
		History:   slices.Clone(s.History),
	}
	for i, inst := range c.Instances {
		if inst.ArchivedAt != nil {
			at := *inst.ArchivedAt
			c.Instances[i].ArchivedAt = &at
		}
	}
	return c
}

// Transition is a request to move the active instance between stages.
type Transition struct {
	From   workflows.StageID `json:"from_stage"`
	To     workflows.StageID `json:"to_stage"`
	Reason string            `json:"reason"`
	// PendingFeedback is the number of feedback items not yet applied, rejected or superseded.
	PendingFeedback int `json:"-"`
}

// Available lists what an actor may do next.
type Available struct {
	Instance *Instance           `json:"instance,omitempty"`
	Stage    *workflows.Stage    `json:"stage,omitempty"`
	Forward  []workflows.StageID `json:"forward"`
	Backward []workflows.StageID `json:"backward"`
	CanReset bool                `json:"can_reset"`
}
