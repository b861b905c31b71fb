package workflows

import (
	"fmt"
	"slices"
)

// StageID identifies a stage of a review workflow.
type StageID string

// Role is an actor role as supplied by the identity provider.
type Role string

// Stage ids of the default publication workflow.
const (
	StageDraftCreation        StageID = "DRAFT_CREATION"
	StageInternalCoordination StageID = "INTERNAL_COORDINATION"
	StageOPRRevisions         StageID = "OPR_REVISIONS"
	StageExternalCoordination StageID = "EXTERNAL_COORDINATION"
	StageOPRFinal             StageID = "OPR_FINAL"
	StageLegalReview          StageID = "LEGAL_REVIEW"
	StageOPRLegal             StageID = "OPR_LEGAL"
	StageFinalPublishing      StageID = "FINAL_PUBLISHING"
	StagePublished            StageID = "PUBLISHED"
)

// Roles used by the default publication workflow.
const (
	RoleOPR               Role = "OPR"
	RoleAuthor            Role = "AUTHOR"
	RoleCoordinator       Role = "COORDINATOR"
	RoleICUReviewer       Role = "ICU_REVIEWER"
	RoleTechnicalReviewer Role = "TECHNICAL_REVIEWER"
	RoleLegalReviewer     Role = "LEGAL_REVIEWER"
	RolePublisher         Role = "AFDPO"
	RoleAdmin             Role = "ADMIN"
)

// Stage is a node of the workflow graph.
type Stage struct {
	ID            StageID   `yaml:"id" json:"id"`
	Name          string    `yaml:"name" json:"name"`
	RequiredRoles []Role    `yaml:"required_roles" json:"required_roles"`
	Next          []StageID `yaml:"next" json:"next"`
	Prev          []StageID `yaml:"prev" json:"prev"`
	Terminal      bool      `yaml:"terminal" json:"terminal"`
	// RequireMergeComplete blocks leaving the stage while feedback is still pending.
	RequireMergeComplete bool `yaml:"require_merge_complete" json:"require_merge_complete"`
}

// Definition is the explicit adjacency table of a workflow.
type Definition struct {
	Name          string  `yaml:"name" json:"name"`
	Initial       StageID `yaml:"initial" json:"initial"`
	Stages        []Stage `yaml:"stages" json:"stages"`
	AdminRoles    []Role  `yaml:"admin_roles" json:"admin_roles"`
	BackwardRoles []Role  `yaml:"backward_roles" json:"backward_roles"`
	ResetRoles    []Role  `yaml:"reset_roles" json:"reset_roles"`

	index map[StageID]int
}

// StateMachine enforces stage transitions over a validated definition
type StateMachine struct {
	def *Definition
}

// NewStateMachine validates the definition and builds a state machine over it.
func NewStateMachine(def *Definition) (*StateMachine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &StateMachine{def: def}, nil
}

// Definition returns the underlying definition.
func (sm *StateMachine) Definition() *Definition {
	return sm.def
}

// Validate checks that the adjacency table is closed and consistent.
func (d *Definition) Validate() error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %q has no stages", d.Name)
	}
	d.index = make(map[StageID]int, len(d.Stages))
	for i, s := range d.Stages {
		if s.ID == "" {
			return fmt.Errorf("workflow %q: stage %d has no id", d.Name, i)
		}
		if _, dup := d.index[s.ID]; dup {
			return fmt.Errorf("workflow %q: duplicate stage %s", d.Name, s.ID)
		}
		d.index[s.ID] = i
	}
	if _, ok := d.index[d.Initial]; !ok {
		return fmt.Errorf("workflow %q: initial stage %q is not defined", d.Name, d.Initial)
	}
	for _, s := range d.Stages {
		if s.Terminal && len(s.Next) > 0 {
			return fmt.Errorf("workflow %q: terminal stage %s has next stages", d.Name, s.ID)
		}
		for _, n := range append(slices.Clone(s.Next), s.Prev...) {
			if _, ok := d.index[n]; !ok {
				return fmt.Errorf("workflow %q: stage %s references unknown stage %s", d.Name, s.ID, n)
			}
		}
	}
	return nil
}

// Stage looks up a stage by id.
func (d *Definition) Stage(id StageID) (Stage, bool) {
	i, ok := d.index[id]
	if !ok {
		return Stage{}, false
	}
	return d.Stages[i], true
}

// CanTransition checks if a forward transition is allowed
func (sm *StateMachine) CanTransition(from, to StageID) bool {
	s, ok := sm.def.Stage(from)
	if !ok {
		return false
	}
	return slices.Contains(s.Next, to)
}

// CanMoveBackward checks if a backward transition is allowed
func (sm *StateMachine) CanMoveBackward(from, to StageID) bool {
	s, ok := sm.def.Stage(from)
	if !ok {
		return false
	}
	return slices.Contains(s.Prev, to)
}

// GetAllowedTransitions returns the allowed next stages for a given stage
func (sm *StateMachine) GetAllowedTransitions(from StageID) []StageID {
	s, ok := sm.def.Stage(from)
	if !ok {
		return []StageID{}
	}
	return s.Next
}

// GetAllowedBackward returns the allowed previous stages for a given stage
func (sm *StateMachine) GetAllowedBackward(from StageID) []StageID {
	s, ok := sm.def.Stage(from)
	if !ok {
		return []StageID{}
	}
	return s.Prev
}

// IsAdmin reports whether the role bypasses stage role requirements.
func (sm *StateMachine) IsAdmin(role Role) bool {
	return slices.Contains(sm.def.AdminRoles, role)
}

// CanEnter reports whether role may move a document into stage id.
func (sm *StateMachine) CanEnter(id StageID, role Role) bool {
	if sm.IsAdmin(role) {
		return true
	}
	s, ok := sm.def.Stage(id)
	if !ok {
		return false
	}
	return len(s.RequiredRoles) == 0 || slices.Contains(s.RequiredRoles, role)
}

// CanMoveBackwardAs reports whether role may perform backward moves.
func (sm *StateMachine) CanMoveBackwardAs(role Role) bool {
	return sm.IsAdmin(role) || slices.Contains(sm.def.BackwardRoles, role)
}

// CanResetAs reports whether role may reset a workflow.
func (sm *StateMachine) CanResetAs(role Role) bool {
	return sm.IsAdmin(role) || slices.Contains(sm.def.ResetRoles, role)
}
