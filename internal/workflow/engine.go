package workflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docreview/review-portal/review-portal-backend/internal/auth"
	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

// Engine applies stage transitions to a workflow State. A failed call leaves the state untouched.
type Engine struct {
	sm  *workflows.StateMachine
	now func() time.Time
}

func NewEngine(sm *workflows.StateMachine) *Engine {
	return &Engine{
		sm:  sm,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// StateMachine exposes the underlying transition table.
func (e *Engine) StateMachine() *workflows.StateMachine {
	return e.sm
}

// Start returns the active instance, creating the first one at the initial stage when the
// document has never entered the workflow.
func (e *Engine) Start(s *State, documentID string) (Instance, error) {
	if inst, ok := s.Active(); ok {
		return *inst, nil
	}
	if len(s.Instances) > 0 {
		return Instance{}, e.completed(s)
	}
	inst := Instance{
		ID:           uuid.New().String(),
		DocumentID:   documentID,
		CurrentStage: e.sm.Definition().Initial,
		IsActive:     true,
		CreatedAt:    e.now(),
	}
	s.Instances = append(s.Instances, inst)
	return inst, nil
}

// Advance moves the active instance forward along the adjacency table.
func (e *Engine) Advance(s *State, t Transition, actor auth.Actor) (TransitionRecord, error) {
	if err := actor.Validate(); err != nil {
		return TransitionRecord{}, err
	}
	inst, from, err := e.source(s, t)
	if err != nil {
		return TransitionRecord{}, err
	}
	if !e.sm.CanTransition(t.From, t.To) {
		return TransitionRecord{}, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot advance from %s to %s", t.From, t.To).
			With("from_stage", string(t.From)).
			With("to_stage", string(t.To)).
			With("allowed", joinStages(e.sm.GetAllowedTransitions(t.From)))
	}
	if err := casStage(inst, t.From); err != nil {
		return TransitionRecord{}, err
	}
	if !e.sm.CanEnter(t.To, actor.Role) {
		to, _ := e.sm.Definition().Stage(t.To)
		return TransitionRecord{}, apperrors.Newf(apperrors.CodePermissionDenied, "role %s may not move the document to %s", actor.Role, t.To).
			With("to_stage", string(t.To)).
			With("role", string(actor.Role)).
			With("required_roles", joinRoles(to.RequiredRoles))
	}
	if from.RequireMergeComplete && t.PendingFeedback > 0 {
		return TransitionRecord{}, apperrors.Newf(apperrors.CodeMergeIncomplete, "%d feedback items are still pending", t.PendingFeedback).
			With("from_stage", string(t.From)).
			With("pending", strconv.Itoa(t.PendingFeedback))
	}

	return e.commit(s, inst, t, actor, DirectionForward), nil
}

// MoveBackward returns the active instance to an earlier stage. A reason is mandatory.
func (e *Engine) MoveBackward(s *State, t Transition, actor auth.Actor) (TransitionRecord, error) {
	if err := actor.Validate(); err != nil {
		return TransitionRecord{}, err
	}
	if strings.TrimSpace(t.Reason) == "" {
		return TransitionRecord{}, apperrors.New(apperrors.CodeValidation, "a reason is required to move backward").
			With("from_stage", string(t.From)).
			With("to_stage", string(t.To))
	}
	inst, _, err := e.source(s, t)
	if err != nil {
		return TransitionRecord{}, err
	}
	if !e.sm.CanMoveBackward(t.From, t.To) {
		return TransitionRecord{}, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot move back from %s to %s", t.From, t.To).
			With("from_stage", string(t.From)).
			With("to_stage", string(t.To)).
			With("allowed", joinStages(e.sm.GetAllowedBackward(t.From)))
	}
	if err := casStage(inst, t.From); err != nil {
		return TransitionRecord{}, err
	}
	if !e.sm.CanMoveBackwardAs(actor.Role) {
		return TransitionRecord{}, apperrors.Newf(apperrors.CodePermissionDenied, "role %s may not move the workflow backward", actor.Role).
			With("from_stage", string(t.From)).
			With("role", string(actor.Role))
	}

	return e.commit(s, inst, t, actor, DirectionBackward), nil
}

// Reset archives the current instance and starts a new one at the initial stage.
// Feedback and applied changes are not part of the workflow state and are never touched.
func (e *Engine) Reset(s *State, actor auth.Actor, reason string) (TransitionRecord, error) {
	if err := actor.Validate(); err != nil {
		return TransitionRecord{}, err
	}
	if len(s.Instances) == 0 {
		return TransitionRecord{}, apperrors.New(apperrors.CodeNotFound, "document has no workflow instance")
	}
	if !e.sm.CanResetAs(actor.Role) {
		return TransitionRecord{}, apperrors.Newf(apperrors.CodePermissionDenied, "role %s may not reset the workflow", actor.Role).
			With("role", string(actor.Role))
	}

	now := e.now()
	last := &s.Instances[len(s.Instances)-1]
	if active, ok := s.Active(); ok {
		last = active
	}
	from := last.CurrentStage
	if last.IsActive {
		last.IsActive = false
		last.ArchivedAt = &now
	}

	inst := Instance{
		ID:           uuid.New().String(),
		DocumentID:   last.DocumentID,
		CurrentStage: e.sm.Definition().Initial,
		IsActive:     true,
		CreatedAt:    now,
	}
	s.Instances = append(s.Instances, inst)

	rec := TransitionRecord{
		ID:          uuid.New().String(),
		InstanceID:  inst.ID,
		FromStage:   from,
		ToStage:     inst.CurrentStage,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		Direction:   DirectionReset,
		Reason:      reason,
		Timestamp:   now,
	}
	s.History = append(s.History, rec)
	return rec, nil
}

// History returns the records of one instance, oldest first.
func (e *Engine) History(s *State, instanceID string) []TransitionRecord {
	var out []TransitionRecord
	for _, r := range s.History {
		if r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	return out
}

// AvailableTransitions lists the stages actor may move the active instance to.
func (e *Engine) AvailableTransitions(s *State, actor auth.Actor) Available {
	av := Available{
		Forward:  []workflows.StageID{},
		Backward: []workflows.StageID{},
		CanReset: len(s.Instances) > 0 && e.sm.CanResetAs(actor.Role),
	}
	inst, ok := s.Active()
	if !ok {
		return av
	}
	cp := *inst
	av.Instance = &cp
	if stage, ok := e.sm.Definition().Stage(inst.CurrentStage); ok {
		av.Stage = &stage
	}
	for _, to := range e.sm.GetAllowedTransitions(inst.CurrentStage) {
		if e.sm.CanEnter(to, actor.Role) {
			av.Forward = append(av.Forward, to)
		}
	}
	if e.sm.CanMoveBackwardAs(actor.Role) {
		av.Backward = append(av.Backward, e.sm.GetAllowedBackward(inst.CurrentStage)...)
	}
	return av
}

// source resolves the active instance and the from stage, rejecting terminal stages.
func (e *Engine) source(s *State, t Transition) (*Instance, workflows.Stage, error) {
	inst, ok := s.Active()
	if !ok {
		if len(s.Instances) > 0 {
			return nil, workflows.Stage{}, e.completed(s)
		}
		return nil, workflows.Stage{}, apperrors.New(apperrors.CodeNotFound, "document has no workflow instance")
	}
	from, ok := e.sm.Definition().Stage(t.From)
	if !ok {
		return nil, workflows.Stage{}, apperrors.Newf(apperrors.CodeInvalidTransition, "unknown stage %s", t.From).
			With("from_stage", string(t.From))
	}
	if from.Terminal {
		return nil, workflows.Stage{}, apperrors.Newf(apperrors.CodeInvalidTransition, "%s is terminal; only reset is allowed", t.From).
			With("from_stage", string(t.From))
	}
	return inst, from, nil
}

func (e *Engine) completed(s *State) error {
	last := s.Instances[len(s.Instances)-1]
	return apperrors.New(apperrors.CodeInvalidTransition, "workflow is complete; only reset is allowed").
		With("current_stage", string(last.CurrentStage))
}

func (e *Engine) commit(s *State, inst *Instance, t Transition, actor auth.Actor, dir Direction) TransitionRecord {
	now := e.now()
	rec := TransitionRecord{
		ID:          uuid.New().String(),
		InstanceID:  inst.ID,
		FromStage:   t.From,
		ToStage:     t.To,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		Direction:   dir,
		Reason:      t.Reason,
		Timestamp:   now,
	}
	inst.CurrentStage = t.To
	if to, ok := e.sm.Definition().Stage(t.To); ok && to.Terminal {
		inst.IsActive = false
		inst.ArchivedAt = &now
	}
	s.History = append(s.History, rec)
	return rec
}

// casStage fails with Conflict when the caller's view of the current stage is stale.
func casStage(inst *Instance, expected workflows.StageID) error {
	if inst.CurrentStage != expected {
		return apperrors.Newf(apperrors.CodeConflict, "workflow is at %s, not %s", inst.CurrentStage, expected).
			With("current_stage", string(inst.CurrentStage)).
			With("expected_stage", string(expected))
	}
	return nil
}

func joinStages(ids []workflows.StageID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

func joinRoles(roles []workflows.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
