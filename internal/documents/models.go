package documents

import (
	"maps"
	"slices"
	"time"

	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/merge"
	"docreview/review-portal/review-portal-backend/internal/workflow"
	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

// Document is the aggregate every review operation works on: content with its merge history,
// the feedback anchored to it and the workflow state.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata"`
	merge.Workspace
	Workflow    workflow.State           `json:"workflow"`
	Resolutions []feedback.ConflictGroup `json:"resolutions"`
	// Revision increases on every persisted change and guards concurrent writers.
	Revision  int64     `json:"revision"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy used as the transaction scratch space.
func (d *Document) Clone() *Document {
	c := *d
	c.Metadata = maps.Clone(d.Metadata)
	c.Workspace = *d.Workspace.Clone()
	c.Workflow = d.Workflow.Clone()
	c.Resolutions = slices.Clone(d.Resolutions)
	return &c
}

type CreateRequest struct {
	Title    string            `json:"title" binding:"required"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type TransitionRequest struct {
	FromStage workflows.StageID `json:"from_stage" binding:"required"`
	ToStage   workflows.StageID `json:"to_stage" binding:"required"`
	Reason    string            `json:"reason"`
}

type TransitionResult struct {
	NewStage     workflows.StageID         `json:"new_stage"`
	HistoryEntry workflow.TransitionRecord `json:"history_entry"`
}

type WorkflowView struct {
	DocumentID      string `json:"document_id"`
	PendingFeedback int    `json:"pending_feedback"`
	Conflicts       int    `json:"conflicts"`
	workflow.Available
}

type MergeResult struct {
	MergedContent string              `json:"merged_content"`
	AppliedChange merge.AppliedChange `json:"applied_change"`
}

type BatchRequest struct {
	FeedbackIDs []string `json:"feedback_ids" binding:"required,min=1"`
	Mode        string   `json:"mode"`
}

type BatchResult struct {
	merge.BatchResult
	MergedContent string `json:"merged_content"`
}

type ResolveRequest struct {
	ChosenFeedbackID string  `json:"chosen_feedback_id"`
	CustomText       *string `json:"custom_text"`
	OriginalText     string  `json:"original_text"`
}

type VerifyResult struct {
	DocumentID string `json:"document_id"`
	Consistent bool   `json:"consistent"`
	Changes    int    `json:"changes"`
	Error      string `json:"error,omitempty"`
}
