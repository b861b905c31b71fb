// Package export renders a review package (merged content, change log, feedback and audit trail)
// as a workbook, CSV or PDF.
package export

import (
	"fmt"
	"strings"
	"time"

	"docreview/review-portal/review-portal-backend/internal/audit"
	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/merge"
)

// Format is an export file format.
type Format string

const (
	FormatExcel Format = "xlsx"
	FormatCSV   Format = "csv"
	FormatPDF   Format = "pdf"
)

// ParseFormat maps a query value to a Format. The empty string selects the workbook.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatExcel, nil
	case FormatExcel, FormatCSV, FormatPDF:
		return f, nil
	default:
		return "", apperrors.Newf(apperrors.CodeValidation, "unsupported export format %q", s).With("format", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Review is everything an export renders for one document.
type Review struct {
	DocumentID  string
	Title       string
	Stage       string
	Content     string
	Items       []feedback.Item
	Changes     []merge.AppliedChange
	Positions   merge.PositionMap
	Entries     []audit.Entry
	GeneratedAt time.Time
}

// Filename returns a download name for the review in format f.
func (r Review) Filename(f Format) string {
	return fmt.Sprintf("review-%s.%s", r.DocumentID, f)
}

// table is a rendered sheet: a header and rows of cell values.
type table struct {
	name    string
	columns []string
	rows    [][]any
}

func auditTable(entries []audit.Entry) table {
	t := table{name: "Audit", columns: []string{"Sequence", "At", "Kind", "Actor", "Role", "Summary"}}
	for _, e := range entries {
		t.rows = append(t.rows, []any{e.Sequence, e.At, string(e.Kind), e.ActorUserID, e.ActorRole, e.Summary})
	}
	return t
}

// changesTable lists the change log with each change's current offset from positions.
func changesTable(changes []merge.AppliedChange, positions merge.PositionMap) table {
	t := table{name: "Changes", columns: []string{
		"Sequence", "Feedback", "Location", "Mode", "Replaced", "Applied", "Delta", "Current Offset",
		"Applied By", "Applied At",
	}}
	for _, c := range changes {
		var current any
		if e, ok := positions.Entry(c.ID); ok {
			current = e.CurrentOffset
		}
		t.rows = append(t.rows, []any{
			c.Sequence, c.FeedbackID, c.OriginalLocation.Key(), string(c.Mode),
			c.ReplacedText, c.ActualAppliedText, c.PositionDeltaApplied, current, c.AppliedBy, c.AppliedAt,
		})
	}
	return t
}

func feedbackTable(items []feedback.Item) table {
	t := table{name: "Feedback", columns: []string{
		"ID", "Location", "Severity", "Status", "Reviewer", "Original", "Suggested", "Comment",
	}}
	for _, it := range items {
		t.rows = append(t.rows, []any{
			it.ID, it.Location.Key(), string(it.Severity), string(it.Status),
			it.ReviewerID, it.OriginalText, it.SuggestedText, it.Comment,
		})
	}
	return t
}

func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
