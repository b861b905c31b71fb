package merge

import (
	"slices"
	"time"

	"docreview/review-portal/review-portal-backend/internal/feedback"
)

// Mode selects how the applied text is produced.
type Mode string

const (
	// ModeLiteral applies the suggested text verbatim.
	ModeLiteral Mode = "literal"
	// ModeRewrite asks the rewrite collaborator for the final wording.
	ModeRewrite Mode = "rewrite"
)

// AppliedChange is the immutable record of one committed edit.
type AppliedChange struct {
	ID               string            `json:"id"`
	Sequence         int               `json:"sequence"`
	FeedbackID       string            `json:"feedback_id,omitempty"`
	ConflictKey      string            `json:"conflict_key,omitempty"`
	OriginalLocation feedback.Location `json:"original_location"`
	// Offset is where the edit landed in the content it was applied to.
	Offset               int       `json:"offset"`
	ReplacedText         string    `json:"replaced_text"`
	ActualAppliedText    string    `json:"actual_applied_text"`
	Mode                 Mode      `json:"mode"`
	PositionDeltaApplied int       `json:"position_delta_applied"`
	AppliedBy            string    `json:"applied_by"`
	AppliedAt            time.Time `json:"applied_at"`
}

// Version groups the changes committed together with the position map at that point.
type Version struct {
	VersionNumber int         `json:"version_number"`
	Changes       []string    `json:"changes"`
	PositionMap   PositionMap `json:"position_map"`
	Checksum      string      `json:"checksum"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Workspace is the mergeable part of a document: content, its applied-change log, the
// position map and the feedback items anchored to it.
type Workspace struct {
	OriginalContent string          `json:"original_content"`
	Content         string          `json:"content"`
	Items           []feedback.Item `json:"feedback"`
	Changes         []AppliedChange `json:"changes"`
	Positions       PositionMap     `json:"position_map"`
	Versions        []Version       `json:"versions"`
}

// NewWorkspace starts a workspace whose original and current content are equal.
func NewWorkspace(content string) Workspace {
	return Workspace{OriginalContent: content, Content: content}
}

// Clone returns a deep copy used as the transaction scratch space.
func (w *Workspace) Clone() *Workspace {
	c := *w
	c.Items = slices.Clone(w.Items)
	c.Changes = slices.Clone(w.Changes)
	c.Positions = w.Positions.Clone()
	c.Versions = make([]Version, len(w.Versions))
	for i, v := range w.Versions {
		v.Changes = slices.Clone(v.Changes)
		v.PositionMap = v.PositionMap.Clone()
		c.Versions[i] = v
	}
	return &c
}

// Item returns a pointer to the item with the given id.
func (w *Workspace) Item(id string) (*feedback.Item, bool) {
	for i := range w.Items {
		if w.Items[i].ID == id {
			return &w.Items[i], true
		}
	}
	return nil, false
}

// PendingCount reports how many items are still pending.
func (w *Workspace) PendingCount() int {
	n := 0
	for _, it := range w.Items {
		if it.IsPending() {
			n++
		}
	}
	return n
}

// AddItem anchors a freshly submitted item to the current content and appends it.
func (w *Workspace) AddItem(it feedback.Item) feedback.Item {
	it.Offset = Hint(w.Content, it.Location, it.OriginalText)
	w.Items = append(w.Items, it)
	return it
}
