package documents

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/audit"
	"docreview/review-portal/review-portal-backend/internal/auth"
	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/merge"
	"docreview/review-portal/review-portal-backend/internal/notifications"
	"docreview/review-portal/review-portal-backend/internal/workflow"
)

type Service interface {
	CreateDocument(ctx context.Context, actor auth.Actor, req CreateRequest) (*Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	VerifyDocument(ctx context.Context, id string) (*VerifyResult, error)

	GetWorkflow(ctx context.Context, id string, actor auth.Actor) (*WorkflowView, error)
	AdvanceWorkflow(ctx context.Context, id string, actor auth.Actor, req TransitionRequest) (*TransitionResult, error)
	MoveWorkflowBackward(ctx context.Context, id string, actor auth.Actor, req TransitionRequest) (*TransitionResult, error)
	ResetWorkflow(ctx context.Context, id string, actor auth.Actor, reason string) (*TransitionResult, error)
	GetHistory(ctx context.Context, id string) ([]workflow.TransitionRecord, error)

	SubmitFeedback(ctx context.Context, id string, actor auth.Actor, req feedback.SubmitRequest) (*feedback.Item, error)
	ListFeedback(ctx context.Context, id string, filter feedback.Filter) ([]feedback.Item, error)
	RejectFeedback(ctx context.Context, id, feedbackID string, actor auth.Actor, reason string) (*feedback.Item, error)
	MergeFeedback(ctx context.Context, id, feedbackID string, actor auth.Actor, mode string) (*MergeResult, error)
	ApplyBatch(ctx context.Context, id string, actor auth.Actor, req BatchRequest) (*BatchResult, error)
	GetConflicts(ctx context.Context, id string) ([]feedback.ConflictGroup, error)
	ResolveConflict(ctx context.Context, id, conflictKey string, actor auth.Actor, req ResolveRequest) (*merge.AppliedChange, error)
	GetAuditTrail(ctx context.Context, id string) ([]audit.Entry, error)
}

type documentService struct {
	repo      Repository
	audit     audit.Store
	engine    *workflow.Engine
	collector *feedback.Collector
	applier   *merge.Applier
	events    notifications.Publisher
	locks     *lockTable
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	store audit.Store,
	engine *workflow.Engine,
	applier *merge.Applier,
	events notifications.Publisher,
	logger *zap.Logger,
) Service {
	if events == nil {
		events = notifications.NopPublisher{}
	}
	return &documentService{
		repo:      repo,
		audit:     store,
		engine:    engine,
		collector: feedback.NewCollector(),
		applier:   applier,
		events:    events,
		locks:     newLockTable(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// txn collects the audit entries and events of one mutation until it is persisted.
type txn struct {
	doc     *Document
	actor   auth.Actor
	at      time.Time
	entries []audit.Entry
	events  []notifications.Event
}

func (t *txn) record(kind audit.Kind, event, summary string, payload any) error {
	entry, err := audit.NewEntry(t.doc.ID, kind, t.actor.UserID, string(t.actor.Role), summary, payload, t.at)
	if err != nil {
		return err
	}
	t.entries = append(t.entries, entry)
	t.events = append(t.events, notifications.Event{
		Type:        event,
		DocumentID:  t.doc.ID,
		ActorUserID: t.actor.UserID,
		Data:        payload,
		Timestamp:   t.at,
	})
	return nil
}

// auditGap reports the entries of tx that were committed with the document but not audited.
func auditGap(tx *txn, err error) notifications.Event {
	kinds := make([]string, len(tx.entries))
	for i, e := range tx.entries {
		kinds[i] = string(e.Kind)
	}
	return notifications.Event{
		Type:        notifications.EventAuditGap,
		DocumentID:  tx.doc.ID,
		ActorUserID: tx.actor.UserID,
		Data: map[string]any{
			"revision": tx.doc.Revision,
			"kinds":    kinds,
			"error":    err.Error(),
		},
		Timestamp: tx.at,
	}
}

// update runs fn on a copy of the document under the document lock and persists the copy
// only when fn succeeds.
func (s *documentService) update(ctx context.Context, id string, actor auth.Actor, fn func(tx *txn) error) (*Document, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.updateLocked(ctx, id, actor, fn)
}

func (s *documentService) updateLocked(ctx context.Context, id string, actor auth.Actor, fn func(tx *txn) error) (*Document, error) {
	current, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tx := &txn{doc: current.Clone(), actor: actor, at: s.now()}
	if err := fn(tx); err != nil {
		return nil, err
	}
	tx.doc.UpdatedAt = tx.at
	if err := s.repo.UpdateDocument(ctx, tx.doc); err != nil {
		return nil, err
	}

	if len(tx.entries) > 0 {
		if err := s.audit.Append(ctx, tx.entries...); err != nil {
			s.logger.Error("failed to append audit entries",
				zap.String("document_id", id),
				zap.Int("entries", len(tx.entries)),
				zap.Error(err))
			tx.events = append(tx.events, auditGap(tx, err))
		}
	}
	for _, ev := range tx.events {
		s.events.Publish(ev)
	}
	return tx.doc, nil
}

func (s *documentService) CreateDocument(ctx context.Context, actor auth.Actor, req CreateRequest) (*Document, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "title is required").With("fields", "title")
	}

	now := s.now()
	doc := &Document{
		ID:        uuid.New().String(),
		Title:     title,
		Metadata:  req.Metadata,
		Workspace: merge.NewWorkspace(req.Content),
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document created",
		zap.String("document_id", doc.ID),
		zap.String("created_by", actor.UserID),
		zap.Int("content_length", len(req.Content)))
	return doc, nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.repo.GetDocumentByID(ctx, id)
}

func (s *documentService) ListDocumentIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListDocumentIDs(ctx)
}

func (s *documentService) VerifyDocument(ctx context.Context, id string) (*VerifyResult, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{DocumentID: doc.ID, Consistent: true, Changes: len(doc.Changes)}
	if err := merge.Verify(&doc.Workspace); err != nil {
		res.Consistent = false
		res.Error = err.Error()
		s.logger.Warn("document failed replay verification", zap.String("document_id", id), zap.Error(err))
	}
	return res, nil
}

func (s *documentService) GetWorkflow(ctx context.Context, id string, actor auth.Actor) (*WorkflowView, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	groups, _ := feedback.Detect(doc.Items)
	return &WorkflowView{
		DocumentID:      doc.ID,
		PendingFeedback: doc.PendingCount(),
		Conflicts:       len(groups),
		Available:       s.engine.AvailableTransitions(&doc.Workflow, actor),
	}, nil
}

func (s *documentService) AdvanceWorkflow(ctx context.Context, id string, actor auth.Actor, req TransitionRequest) (*TransitionResult, error) {
	var rec workflow.TransitionRecord
	_, err := s.update(ctx, id, actor, func(tx *txn) error {
		if _, err := s.engine.Start(&tx.doc.Workflow, tx.doc.ID); err != nil {
			return err
		}
		var err error
		rec, err = s.engine.Advance(&tx.doc.Workflow, workflow.Transition{
			From:            req.FromStage,
			To:              req.ToStage,
			Reason:          req.Reason,
			PendingFeedback: tx.doc.PendingCount(),
		}, actor)
		if err != nil {
			return err
		}
		return tx.record(audit.KindTransition, notifications.EventWorkflowTransitioned,
			fmt.Sprintf("advanced from %s to %s", rec.FromStage, rec.ToStage), rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow advanced",
		zap.String("document_id", id),
		zap.String("from_stage", string(rec.FromStage)),
		zap.String("to_stage", string(rec.ToStage)),
		zap.String("actor", actor.UserID))
	return &TransitionResult{NewStage: rec.ToStage, HistoryEntry: rec}, nil
}

func (s *documentService) MoveWorkflowBackward(ctx context.Context, id string, actor auth.Actor, req TransitionRequest) (*TransitionResult, error) {
	var rec workflow.TransitionRecord
	_, err := s.update(ctx, id, actor, func(tx *txn) error {
		var err error
		rec, err = s.engine.MoveBackward(&tx.doc.Workflow, workflow.Transition{
			From:   req.FromStage,
			To:     req.ToStage,
			Reason: req.Reason,
		}, actor)
		if err != nil {
			return err
		}
		return tx.record(audit.KindTransition, notifications.EventWorkflowTransitioned,
			fmt.Sprintf("moved back from %s to %s", rec.FromStage, rec.ToStage), rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow moved backward",
		zap.String("document_id", id),
		zap.String("from_stage", string(rec.FromStage)),
		zap.String("to_stage", string(rec.ToStage)),
		zap.String("reason", rec.Reason))
	return &TransitionResult{NewStage: rec.ToStage, HistoryEntry: rec}, nil
}

func (s *documentService) ResetWorkflow(ctx context.Context, id string, actor auth.Actor, reason string) (*TransitionResult, error) {
	var rec workflow.TransitionRecord
	_, err := s.update(ctx, id, actor, func(tx *txn) error {
		var err error
		rec, err = s.engine.Reset(&tx.doc.Workflow, actor, reason)
		if err != nil {
			return err
		}
		return tx.record(audit.KindTransition, notifications.EventWorkflowTransitioned,
			fmt.Sprintf("reset from %s", rec.FromStage), rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow reset", zap.String("document_id", id), zap.String("instance_id", rec.InstanceID))
	return &TransitionResult{NewStage: rec.ToStage, HistoryEntry: rec}, nil
}

func (s *documentService) GetHistory(ctx context.Context, id string) ([]workflow.TransitionRecord, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(doc.Workflow.History), nil
}

func (s *documentService) SubmitFeedback(ctx context.Context, id string, actor auth.Actor, req feedback.SubmitRequest) (*feedback.Item, error) {
	if req.ReviewerID == "" {
		req.ReviewerID = actor.UserID
	}
	var item feedback.Item
	_, err := s.update(ctx, id, actor, func(tx *txn) error {
		if _, err := s.engine.Start(&tx.doc.Workflow, tx.doc.ID); err != nil {
			return err
		}
		submitted, err := s.collector.Submit(tx.doc.ID, req)
		if err != nil {
			return err
		}
		item = tx.doc.AddItem(submitted)
		return tx.record(audit.KindFeedbackSubmitted, notifications.EventFeedbackSubmitted,
			fmt.Sprintf("%s feedback at %s", item.Severity, item.Location), item)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("feedback submitted",
		zap.String("document_id", id),
		zap.String("feedback_id", item.ID),
		zap.String("location", item.Location.Key()),
		zap.String("severity", string(item.Severity)))
	return &item, nil
}

func (s *documentService) ListFeedback(ctx context.Context, id string, filter feedback.Filter) ([]feedback.Item, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return feedback.List(doc.Items, filter), nil
}

func (s *documentService) RejectFeedback(ctx context.Context, id, feedbackID string, actor auth.Actor, reason string) (*feedback.Item, error) {
	var item feedback.Item
	_, err := s.update(ctx, id, actor, func(tx *txn) error {
		it, ok := tx.doc.Item(feedbackID)
		if !ok {
			return apperrors.New(apperrors.CodeNotFound, "feedback not found").With("feedback_id", feedbackID)
		}
		if err := it.Reject(reason, tx.at); err != nil {
			return err
		}
		item = *it
		return tx.record(audit.KindFeedbackRejected, notifications.EventFeedbackRejected,
			fmt.Sprintf("rejected feedback %s", feedbackID), item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *documentService) MergeFeedback(ctx context.Context, id, feedbackID string, actor auth.Actor, mode string) (*MergeResult, error) {
	m, err := merge.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	var change merge.AppliedChange
	doc, err := s.update(ctx, id, actor, func(tx *txn) error {
		var err error
		change, err = s.applier.Apply(ctx, &tx.doc.Workspace, feedbackID, m, actor.UserID)
		if err != nil {
			return err
		}
		return tx.record(audit.KindChangeApplied, notifications.EventChangeApplied,
			fmt.Sprintf("applied feedback %s at %s", feedbackID, change.OriginalLocation), change)
	})
	if err != nil {
		s.logMergeFailure(id, feedbackID, err)
		return nil, err
	}

	s.logger.Info("feedback merged",
		zap.String("document_id", id),
		zap.String("feedback_id", feedbackID),
		zap.String("mode", string(m)),
		zap.Int("delta", change.PositionDeltaApplied))
	return &MergeResult{MergedContent: doc.Content, AppliedChange: change}, nil
}

// ApplyBatch holds the document lock for the whole batch. Changes applied before a failure
// are persisted and returned together with the error.
func (s *documentService) ApplyBatch(ctx context.Context, id string, actor auth.Actor, req BatchRequest) (*BatchResult, error) {
	if len(req.FeedbackIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "feedback_ids is required").With("fields", "feedback_ids")
	}
	m, err := merge.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	var (
		res      merge.BatchResult
		batchErr error
	)
	doc, err := s.update(ctx, id, actor, func(tx *txn) error {
		res, batchErr = s.applier.ApplyBatch(ctx, &tx.doc.Workspace, req.FeedbackIDs, m, actor.UserID)
		if len(res.Applied) == 0 {
			return batchErr
		}
		for _, change := range res.Applied {
			if err := tx.record(audit.KindChangeApplied, notifications.EventChangeApplied,
				fmt.Sprintf("applied feedback %s at %s", change.FeedbackID, change.OriginalLocation), change); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logMergeFailure(id, res.FailedID, err)
		return nil, err
	}

	out := &BatchResult{BatchResult: res, MergedContent: doc.Content}
	if batchErr != nil {
		s.logMergeFailure(id, res.FailedID, batchErr)
		return out, batchErr
	}
	s.logger.Info("feedback batch merged", zap.String("document_id", id), zap.Int("applied", len(res.Applied)))
	return out, nil
}

func (s *documentService) GetConflicts(ctx context.Context, id string) ([]feedback.ConflictGroup, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	groups, _ := feedback.Detect(doc.Items)
	if groups == nil {
		groups = []feedback.ConflictGroup{}
	}
	return groups, nil
}

func (s *documentService) ResolveConflict(ctx context.Context, id, conflictKey string, actor auth.Actor, req ResolveRequest) (*merge.AppliedChange, error) {
	var change merge.AppliedChange
	_, err := s.update(ctx, id, actor, func(tx *txn) error {
		group, c, err := s.applier.ResolveConflict(ctx, &tx.doc.Workspace, conflictKey, feedback.Resolution{
			ChosenFeedbackID: req.ChosenFeedbackID,
			CustomText:       req.CustomText,
			OriginalText:     req.OriginalText,
			ResolvedBy:       actor.UserID,
		})
		if err != nil {
			return err
		}
		change = c
		tx.doc.Resolutions = append(tx.doc.Resolutions, group)
		return tx.record(audit.KindConflictResolved, notifications.EventConflictResolved,
			fmt.Sprintf("resolved conflict at %s", group.Location), group)
	})
	if err != nil {
		s.logMergeFailure(id, conflictKey, err)
		return nil, err
	}

	s.logger.Info("conflict resolved",
		zap.String("document_id", id),
		zap.String("conflict_key", conflictKey),
		zap.String("chosen_feedback_id", req.ChosenFeedbackID))
	return &change, nil
}

func (s *documentService) GetAuditTrail(ctx context.Context, id string) ([]audit.Entry, error) {
	if _, err := s.repo.GetDocumentByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.audit.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

func (s *documentService) logMergeFailure(documentID, target string, err error) {
	code := apperrors.GetCode(err)
	fields := []zap.Field{
		zap.String("document_id", documentID),
		zap.String("target", target),
		zap.String("code", string(code)),
		zap.Error(err),
	}
	if code.RollsBack() {
		s.logger.Warn("merge rolled back", fields...)
		return
	}
	s.logger.Debug("merge refused", fields...)
}
