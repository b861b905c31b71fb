package merge

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/internal/feedback"
)

// RewriteRequest is what the rewrite collaborator receives for one feedback item.
type RewriteRequest struct {
	DocumentID    string            `json:"document_id"`
	Location      feedback.Location `json:"location"`
	OriginalText  string            `json:"original_text"`
	SuggestedText string            `json:"suggested_text"`
	Comment       string            `json:"comment,omitempty"`
	Justification string            `json:"justification,omitempty"`
	Severity      feedback.Severity `json:"severity"`
	// Context is the full line the original text was found on.
	Context string `json:"context"`
}

// Rewriter produces the final wording for a suggestion in rewrite mode.
type Rewriter interface {
	Rewrite(ctx context.Context, req RewriteRequest) (string, error)
}

// ParseMode maps a request value to a Mode. The empty string means literal.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLiteral:
		return ModeLiteral, nil
	case ModeRewrite:
		return ModeRewrite, nil
	default:
		return "", apperrors.Newf(apperrors.CodeValidation, "unknown merge mode %q", s).With("mode", s)
	}
}

// Applier commits feedback into a workspace one transaction at a time.
type Applier struct {
	anchors  []*regexp.Regexp
	rewriter Rewriter
	now      func() time.Time
}

// NewApplier creates an applier. rewriter may be nil, in which case rewrite mode fails.
func NewApplier(rewriter Rewriter) *Applier {
	return &Applier{
		anchors:  DefaultAnchors,
		rewriter: rewriter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (a *Applier) WithClock(now func() time.Time) *Applier {
	a.now = now
	return a
}

// WithAnchors overrides the structural anchor patterns.
func (a *Applier) WithAnchors(anchors []*regexp.Regexp) *Applier {
	a.anchors = anchors
	return a
}

// edit is one replacement request against the current content.
type edit struct {
	feedbackID  string
	conflictKey string
	location    feedback.Location
	original    string
	replacement string
	hint        int
	rewrite     *RewriteRequest
}

// Apply merges one pending feedback item. On any error w is left untouched.
func (a *Applier) Apply(ctx context.Context, w *Workspace, feedbackID string, mode Mode, appliedBy string) (AppliedChange, error) {
	scratch := w.Clone()
	change, err := a.applyItem(ctx, scratch, feedbackID, mode, appliedBy, false)
	if err != nil {
		return AppliedChange{}, err
	}
	*w = *scratch
	return change, nil
}

func (a *Applier) applyItem(ctx context.Context, w *Workspace, feedbackID string, mode Mode, appliedBy string, resolving bool) (AppliedChange, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return AppliedChange{}, err
	}
	it, ok := w.Item(feedbackID)
	if !ok {
		return AppliedChange{}, apperrors.New(apperrors.CodeNotFound, "feedback not found").With("feedback_id", feedbackID)
	}
	if err := it.EnsurePending(); err != nil {
		return AppliedChange{}, err
	}
	if !resolving && feedback.InConflict(w.Items, *it) {
		return AppliedChange{}, apperrors.New(apperrors.CodeConflict, "feedback belongs to an unresolved conflict group").
			With("feedback_id", it.ID).
			With("conflict_key", it.Location.Key())
	}

	e := edit{
		feedbackID:  it.ID,
		location:    it.Location,
		original:    it.OriginalText,
		replacement: it.SuggestedText,
		hint:        it.Offset,
	}
	if mode == ModeRewrite {
		e.rewrite = &RewriteRequest{
			DocumentID:    it.DocumentID,
			Location:      it.Location,
			OriginalText:  it.OriginalText,
			SuggestedText: it.SuggestedText,
			Comment:       it.Comment,
			Justification: it.Justification,
			Severity:      it.Severity,
		}
	}

	change, err := a.splice(ctx, w, e, mode, appliedBy)
	if err != nil {
		return AppliedChange{}, err
	}
	// splice never moves items, only their offsets, so it is still valid.
	if err := it.MarkApplied(change.AppliedAt); err != nil {
		return AppliedChange{}, err
	}
	return change, nil
}

// splice locates e.original nearest the hint, replaces it and records drift, the change and a
// new version on w.
func (a *Applier) splice(ctx context.Context, w *Workspace, e edit, mode Mode, appliedBy string) (AppliedChange, error) {
	idx, ok := Nearest(w.Content, e.original, e.hint)
	if !ok {
		return AppliedChange{}, apperrors.New(apperrors.CodeTextNotFound, "original text not found in current content").
			With("feedback_id", e.feedbackID).
			With("location", e.location.Key()).
			With("hint", strconv.Itoa(e.hint)).
			With("drift", strconv.Itoa(w.Positions.Drift(e.hint)))
	}

	text := e.replacement
	if e.rewrite != nil {
		e.rewrite.Context = lineAround(w.Content, idx, len(e.original))
		var err error
		if text, err = a.rewriteText(ctx, *e.rewrite); err != nil {
			return AppliedChange{}, err
		}
	}

	next := w.Content[:idx] + text + w.Content[idx+len(e.original):]
	if before, after := countAnchors(w.Content, a.anchors), countAnchors(next, a.anchors); before != after {
		return AppliedChange{}, apperrors.New(apperrors.CodeStructuralCorruption, "edit changes the document structure").
			With("feedback_id", e.feedbackID).
			With("location", e.location.Key()).
			With("anchors_before", strconv.Itoa(before)).
			With("anchors_after", strconv.Itoa(after))
	}

	delta := len(text) - len(e.original)
	for i := range w.Items {
		other := &w.Items[i]
		if other.ID == e.feedbackID || !other.IsPending() {
			continue
		}
		other.Offset = shift(other.Offset, idx, delta)
	}
	w.Positions.Shift(idx, delta)

	now := a.now()
	change := AppliedChange{
		ID:                   uuid.New().String(),
		Sequence:             len(w.Changes) + 1,
		FeedbackID:           e.feedbackID,
		ConflictKey:          e.conflictKey,
		OriginalLocation:     e.location,
		Offset:               idx,
		ReplacedText:         e.original,
		ActualAppliedText:    text,
		Mode:                 mode,
		PositionDeltaApplied: delta,
		AppliedBy:            appliedBy,
		AppliedAt:            now,
	}
	w.Content = next
	w.Changes = append(w.Changes, change)
	w.Positions.Record(PositionEntry{
		ChangeID:      change.ID,
		LocationKey:   e.location.Key(),
		AppliedOffset: idx,
		CurrentOffset: idx,
		Delta:         delta,
	})
	w.Versions = append(w.Versions, Version{
		VersionNumber: len(w.Versions) + 1,
		Changes:       []string{change.ID},
		PositionMap:   w.Positions.Clone(),
		Checksum:      Checksum(next),
		CreatedBy:     appliedBy,
		CreatedAt:     now,
	})
	return change, nil
}

func (a *Applier) rewriteText(ctx context.Context, req RewriteRequest) (string, error) {
	if a.rewriter == nil {
		return "", apperrors.New(apperrors.CodeRewriteFailed, "no rewriter configured").
			With("location", req.Location.Key())
	}
	text, err := a.rewriter.Rewrite(ctx, req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeRewriteFailed, "rewrite collaborator failed", err).
			With("location", req.Location.Key())
	}
	return text, nil
}

// ResolveConflict settles the conflict group at key and applies the chosen or custom text.
// The returned group carries the stamped resolution.
func (a *Applier) ResolveConflict(ctx context.Context, w *Workspace, key string, res feedback.Resolution) (feedback.ConflictGroup, AppliedChange, error) {
	g, err := feedback.FindGroup(w.Items, key)
	if err != nil {
		return feedback.ConflictGroup{}, AppliedChange{}, err
	}
	if err := res.Validate(g); err != nil {
		return feedback.ConflictGroup{}, AppliedChange{}, err
	}

	scratch := w.Clone()
	var (
		change AppliedChange
		reason string
	)
	if res.ChosenFeedbackID != "" {
		change, err = a.applyItem(ctx, scratch, res.ChosenFeedbackID, ModeLiteral, res.ResolvedBy, true)
		if err != nil {
			return feedback.ConflictGroup{}, AppliedChange{}, err
		}
		reason = "superseded by " + res.ChosenFeedbackID
	} else {
		original, _ := res.ReplacedText(g)
		change, err = a.splice(ctx, scratch, edit{
			conflictKey: g.Key,
			location:    g.Location,
			original:    original,
			replacement: *res.CustomText,
			hint:        g.Members[0].Offset,
		}, ModeLiteral, res.ResolvedBy)
		if err != nil {
			return feedback.ConflictGroup{}, AppliedChange{}, err
		}
		reason = "superseded by custom resolution"
	}
	change.ConflictKey = g.Key
	scratch.Changes[len(scratch.Changes)-1].ConflictKey = g.Key

	for _, m := range g.Members {
		if m.ID == res.ChosenFeedbackID {
			continue
		}
		it, _ := scratch.Item(m.ID)
		if err := it.Supersede(reason, change.AppliedAt); err != nil {
			return feedback.ConflictGroup{}, AppliedChange{}, err
		}
	}

	*w = *scratch
	res.ResolvedAt = change.AppliedAt
	g.Resolution = &res
	return g, change, nil
}

// BatchResult reports a sequential batch apply.
type BatchResult struct {
	Applied  []AppliedChange `json:"applied"`
	FailedID string          `json:"failed_id,omitempty"`
	Skipped  []string        `json:"skipped,omitempty"`
}

// ApplyBatch applies items strictly in order, each as its own transaction, and stops at the
// first failure. Changes applied before the failure stay committed.
func (a *Applier) ApplyBatch(ctx context.Context, w *Workspace, feedbackIDs []string, mode Mode, appliedBy string) (BatchResult, error) {
	var res BatchResult
	for i, id := range feedbackIDs {
		if err := ctx.Err(); err != nil {
			res.Skipped = append(res.Skipped, feedbackIDs[i:]...)
			return res, err
		}
		change, err := a.Apply(ctx, w, id, mode, appliedBy)
		if err != nil {
			res.FailedID = id
			res.Skipped = append(res.Skipped, feedbackIDs[i+1:]...)
			return res, err
		}
		res.Applied = append(res.Applied, change)
	}
	return res, nil
}

// lineAround returns the line containing content[idx:idx+n].
func lineAround(content string, idx, n int) string {
	start := strings.LastIndexAny(content[:idx], "\n\f") + 1
	end := len(content)
	if rel := strings.IndexAny(content[idx+n:], "\n\f"); rel >= 0 {
		end = idx + n + rel
	}
	return content[start:end]
}
