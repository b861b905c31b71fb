package feedback

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
)

type Severity string

const (
	SeverityCritical       Severity = "CRITICAL"
	SeverityMajor          Severity = "MAJOR"
	SeveritySubstantive    Severity = "SUBSTANTIVE"
	SeverityAdministrative Severity = "ADMINISTRATIVE"
)

// Rank orders severities most urgent first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeveritySubstantive:
		return 2
	case SeverityAdministrative:
		return 3
	default:
		return 4
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusApplied    Status = "applied"
	StatusRejected   Status = "rejected"
	StatusSuperseded Status = "superseded"
)

// Location anchors a feedback item in the document. All components are 1-based.
type Location struct {
	Page      int `json:"page"`
	Paragraph int `json:"paragraph"`
	Line      int `json:"line"`
}

// Key is the exact location tuple used for conflict grouping.
func (l Location) Key() string {
	return fmt.Sprintf("%d:%d:%d", l.Page, l.Paragraph, l.Line)
}

func (l Location) String() string {
	return fmt.Sprintf("page %d, paragraph %d, line %d", l.Page, l.Paragraph, l.Line)
}

// Less orders locations top to bottom.
func (l Location) Less(o Location) bool {
	if l.Page != o.Page {
		return l.Page < o.Page
	}
	if l.Paragraph != o.Paragraph {
		return l.Paragraph < o.Paragraph
	}
	return l.Line < o.Line
}

// ParseLocationKey is the inverse of Location.Key.
func ParseLocationKey(key string) (Location, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return Location{}, apperrors.Newf(apperrors.CodeValidation, "malformed location key %q", key)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return Location{}, apperrors.Newf(apperrors.CodeValidation, "malformed location key %q", key)
		}
		nums[i] = n
	}
	return Location{Page: nums[0], Paragraph: nums[1], Line: nums[2]}, nil
}

// Item is a reviewer-proposed text change anchored to a document location.
type Item struct {
	ID            string   `json:"id"`
	DocumentID    string   `json:"document_id"`
	Location      Location `json:"location"`
	OriginalText  string   `json:"original_text"`
	SuggestedText string   `json:"suggested_text"`
	Severity      Severity `json:"severity"`
	ReviewerID    string   `json:"reviewer_id"`
	Comment       string   `json:"comment,omitempty"`
	Justification string   `json:"justification,omitempty"`
	Status        Status   `json:"status"`
	StatusReason  string   `json:"status_reason,omitempty"`
	// Offset is the drift-corrected byte offset hint into the current content.
	Offset    int       `json:"offset"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPending reports whether the item can still be applied, rejected or superseded.
func (it *Item) IsPending() bool {
	return it.Status == StatusPending
}

// EnsurePending returns AlreadyApplied for applied items and Conflict for any other closed item.
func (it *Item) EnsurePending() error {
	switch it.Status {
	case StatusPending:
		return nil
	case StatusApplied:
		return apperrors.New(apperrors.CodeAlreadyApplied, "feedback already applied").
			With("feedback_id", it.ID).
			With("location", it.Location.Key())
	default:
		return apperrors.Newf(apperrors.CodeConflict, "feedback is %s", it.Status).
			With("feedback_id", it.ID).
			With("status", string(it.Status))
	}
}

// close moves a pending item to a terminal status. Status never reverts.
func (it *Item) close(to Status, reason string, at time.Time) error {
	if err := it.EnsurePending(); err != nil {
		return err
	}
	it.Status = to
	it.StatusReason = reason
	it.UpdatedAt = at
	return nil
}

// MarkApplied records that the item's text has been committed.
func (it *Item) MarkApplied(at time.Time) error {
	return it.close(StatusApplied, "", at)
}

// Supersede records that the item lost a conflict resolution.
func (it *Item) Supersede(reason string, at time.Time) error {
	return it.close(StatusSuperseded, reason, at)
}

// Reject records an explicit decline.
func (it *Item) Reject(reason string, at time.Time) error {
	return it.close(StatusRejected, reason, at)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status     Status   `form:"status" json:"status,omitempty"`
	Severity   Severity `form:"severity" json:"severity,omitempty"`
	ReviewerID string   `form:"reviewer_id" json:"reviewer_id,omitempty"`
}

func (f Filter) matches(it Item) bool {
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Severity != "" && it.Severity != f.Severity {
		return false
	}
	if f.ReviewerID != "" && it.ReviewerID != f.ReviewerID {
		return false
	}
	return true
}
