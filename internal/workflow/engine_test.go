package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docreview/review-portal/review-portal-backend/internal/auth"
	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	def, err := workflows.Default()
	require.NoError(t, err)
	sm, err := workflows.NewStateMachine(def)
	require.NoError(t, err)
	return NewEngine(sm).WithClock(func() time.Time { return now })
}

func actor(role workflows.Role) auth.Actor {
	return auth.Actor{UserID: "user-" + string(role), Role: role}
}

func stateAt(stage workflows.StageID) *State {
	return &State{Instances: []Instance{{ID: "inst-1", DocumentID: "doc-1", CurrentStage: stage, IsActive: true, CreatedAt: now}}}
}

func TestStartCreatesSingleInstance(t *testing.T) {
	e := newEngine(t)
	s := &State{}

	inst, err := e.Start(s, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, workflows.StageDraftCreation, inst.CurrentStage)
	assert.True(t, inst.IsActive)

	again, err := e.Start(s, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, again.ID)
	assert.Len(t, s.Instances, 1)
}

func TestAdvanceWalksPublicationWorkflow(t *testing.T) {
	e := newEngine(t)
	s := &State{}
	_, err := e.Start(s, "doc-1")
	require.NoError(t, err)

	steps := []struct {
		from, to workflows.StageID
		role     workflows.Role
	}{
		{workflows.StageDraftCreation, workflows.StageInternalCoordination, workflows.RoleOPR},
		{workflows.StageInternalCoordination, workflows.StageOPRRevisions, workflows.RoleCoordinator},
		{workflows.StageOPRRevisions, workflows.StageExternalCoordination, workflows.RoleOPR},
		{workflows.StageExternalCoordination, workflows.StageOPRFinal, workflows.RoleCoordinator},
		{workflows.StageOPRFinal, workflows.StageLegalReview, workflows.RoleOPR},
		{workflows.StageLegalReview, workflows.StageOPRLegal, workflows.RoleLegalReviewer},
		{workflows.StageOPRLegal, workflows.StageFinalPublishing, workflows.RoleOPR},
		{workflows.StageFinalPublishing, workflows.StagePublished, workflows.RolePublisher},
	}
	for _, step := range steps {
		rec, err := e.Advance(s, Transition{From: step.from, To: step.to}, actor(step.role))
		require.NoError(t, err, "%s -> %s", step.from, step.to)
		assert.Equal(t, DirectionForward, rec.Direction)
		assert.Equal(t, step.to, rec.ToStage)
	}

	require.Len(t, s.History, len(steps))
	_, active := s.Active()
	assert.False(t, active)
	require.NotNil(t, s.Instances[0].ArchivedAt)

	_, err = e.Advance(s, Transition{From: workflows.StagePublished, To: workflows.StageDraftCreation}, actor(workflows.RoleAdmin))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	_, err = e.Start(s, "doc-1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
}

func TestAdvanceRejectsPairsOutsideTable(t *testing.T) {
	e := newEngine(t)
	def := e.StateMachine().Definition()
	admin := actor(workflows.RoleAdmin)

	for _, from := range def.Stages {
		for _, to := range def.Stages {
			s := stateAt(from.ID)
			_, err := e.Advance(s, Transition{From: from.ID, To: to.ID}, admin)
			if e.StateMachine().CanTransition(from.ID, to.ID) {
				assert.NoError(t, err, "%s -> %s", from.ID, to.ID)
				continue
			}
			assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition), "%s -> %s: %v", from.ID, to.ID, err)
			assert.Empty(t, s.History)
			assert.Equal(t, from.ID, s.Instances[0].CurrentStage)
		}
	}
}

func TestAdvanceUsesDefinitionTable(t *testing.T) {
	def := &workflows.Definition{
		Name:    "short",
		Initial: workflows.StageLegalReview,
		Stages: []workflows.Stage{
			{ID: workflows.StageDraftCreation, Next: []workflows.StageID{workflows.StageLegalReview}},
			{ID: workflows.StageLegalReview, Next: []workflows.StageID{workflows.StageDraftCreation}},
			{ID: workflows.StageFinalPublishing, Terminal: true},
		},
	}
	sm, err := workflows.NewStateMachine(def)
	require.NoError(t, err)
	e := NewEngine(sm)

	s := stateAt(workflows.StageLegalReview)
	_, err = e.Advance(s, Transition{From: workflows.StageLegalReview, To: workflows.StageFinalPublishing}, actor(workflows.RoleOPR))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
	assert.Equal(t, "DRAFT_CREATION", apperrors.GetMetadata(err)["allowed"])
	assert.Equal(t, workflows.StageLegalReview, s.Instances[0].CurrentStage)
}

func TestAdvanceStaleFromStageConflicts(t *testing.T) {
	e := newEngine(t)
	s := stateAt(workflows.StageInternalCoordination)

	_, err := e.Advance(s, Transition{From: workflows.StageDraftCreation, To: workflows.StageInternalCoordination}, actor(workflows.RoleOPR))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.Equal(t, "INTERNAL_COORDINATION", apperrors.GetMetadata(err)["current_stage"])
	assert.Empty(t, s.History)
}

func TestAdvanceChecksRole(t *testing.T) {
	e := newEngine(t)
	s := stateAt(workflows.StageDraftCreation)

	_, err := e.Advance(s, Transition{From: workflows.StageDraftCreation, To: workflows.StageInternalCoordination}, actor(workflows.RoleAuthor))
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	_, err = e.Advance(s, Transition{From: workflows.StageDraftCreation, To: workflows.StageInternalCoordination}, auth.Actor{UserID: "u"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	rec, err := e.Advance(s, Transition{From: workflows.StageDraftCreation, To: workflows.StageInternalCoordination}, actor(workflows.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, workflows.RoleAdmin, rec.ActorRole)
}

func TestAdvanceRequiresCompletedMerge(t *testing.T) {
	e := newEngine(t)
	s := stateAt(workflows.StageOPRRevisions)
	tr := Transition{From: workflows.StageOPRRevisions, To: workflows.StageExternalCoordination, PendingFeedback: 2}

	_, err := e.Advance(s, tr, actor(workflows.RoleOPR))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeMergeIncomplete))
	assert.Equal(t, "2", apperrors.GetMetadata(err)["pending"])

	tr.PendingFeedback = 0
	_, err = e.Advance(s, tr, actor(workflows.RoleOPR))
	assert.NoError(t, err)
}

func TestMoveBackward(t *testing.T) {
	e := newEngine(t)
	s := stateAt(workflows.StageOPRRevisions)
	tr := Transition{From: workflows.StageOPRRevisions, To: workflows.StageDraftCreation}

	_, err := e.MoveBackward(s, tr, actor(workflows.RoleCoordinator))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	tr.Reason = "structure needs rework"
	_, err = e.MoveBackward(s, tr, actor(workflows.RoleOPR))
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	_, err = e.MoveBackward(s, Transition{From: workflows.StageOPRRevisions, To: workflows.StageLegalReview, Reason: "x"}, actor(workflows.RoleCoordinator))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	rec, err := e.MoveBackward(s, tr, actor(workflows.RoleCoordinator))
	require.NoError(t, err)
	assert.Equal(t, DirectionBackward, rec.Direction)
	assert.Equal(t, "structure needs rework", rec.Reason)
	assert.Equal(t, workflows.StageDraftCreation, s.Instances[0].CurrentStage)
}

func TestResetArchivesAndRestarts(t *testing.T) {
	e := newEngine(t)
	s := stateAt(workflows.StageLegalReview)
	s.History = []TransitionRecord{{ID: "r1", InstanceID: "inst-1", FromStage: workflows.StageOPRFinal, ToStage: workflows.StageLegalReview}}

	_, err := e.Reset(s, actor(workflows.RoleAuthor), "start over")
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	rec, err := e.Reset(s, actor(workflows.RoleCoordinator), "start over")
	require.NoError(t, err)
	assert.Equal(t, DirectionReset, rec.Direction)
	assert.Equal(t, workflows.StageLegalReview, rec.FromStage)
	assert.Equal(t, workflows.StageDraftCreation, rec.ToStage)

	require.Len(t, s.Instances, 2)
	assert.False(t, s.Instances[0].IsActive)
	assert.NotNil(t, s.Instances[0].ArchivedAt)
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, rec.InstanceID, active.ID)

	require.Len(t, s.History, 2)
	assert.Len(t, e.History(s, "inst-1"), 1)
	assert.Len(t, e.History(s, active.ID), 1)

	_, err = e.Reset(&State{}, actor(workflows.RoleAdmin), "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestAdvanceWithoutInstance(t *testing.T) {
	e := newEngine(t)
	_, err := e.Advance(&State{}, Transition{From: workflows.StageDraftCreation, To: workflows.StageInternalCoordination}, actor(workflows.RoleOPR))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestAvailableTransitions(t *testing.T) {
	e := newEngine(t)
	s := stateAt(workflows.StageOPRRevisions)

	av := e.AvailableTransitions(s, actor(workflows.RoleOPR))
	assert.Equal(t, []workflows.StageID{workflows.StageExternalCoordination}, av.Forward)
	assert.Empty(t, av.Backward)
	assert.False(t, av.CanReset)
	require.NotNil(t, av.Stage)
	assert.True(t, av.Stage.RequireMergeComplete)

	av = e.AvailableTransitions(s, actor(workflows.RoleCoordinator))
	assert.Empty(t, av.Forward)
	assert.Equal(t, []workflows.StageID{workflows.StageInternalCoordination, workflows.StageDraftCreation}, av.Backward)
	assert.True(t, av.CanReset)
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := stateAt(workflows.StageDraftCreation)
	archived := now
	s.Instances[0].ArchivedAt = &archived

	c := s.Clone()
	c.Instances[0].CurrentStage = workflows.StagePublished
	*c.Instances[0].ArchivedAt = now.Add(time.Hour)

	assert.Equal(t, workflows.StageDraftCreation, s.Instances[0].CurrentStage)
	assert.Equal(t, now, *s.Instances[0].ArchivedAt)
}
