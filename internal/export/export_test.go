package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"docreview/review-portal/review-portal-backend/internal/audit"
	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/merge"
)

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleReview() Review {
	loc := feedback.Location{Page: 1, Paragraph: 2, Line: 3}
	return Review{
		DocumentID: "doc-1",
		Title:      "Guide – annex",
		Stage:      "OPR_REVISIONS",
		Content:    "AAA LONGERWORD CCC\n\fSecond page",
		Items: []feedback.Item{{
			ID: "fb-1", Location: loc, OriginalText: "BBB", SuggestedText: "LONGERWORD",
			Severity: feedback.SeverityMajor, Status: feedback.StatusApplied, ReviewerID: "r-1",
		}},
		Changes: []merge.AppliedChange{{
			ID: "ch-1", Sequence: 1, FeedbackID: "fb-1", OriginalLocation: loc, Offset: 4,
			ReplacedText: "BBB", ActualAppliedText: "LONGERWORD", Mode: merge.ModeLiteral,
			PositionDeltaApplied: 7, AppliedBy: "opr-1", AppliedAt: at,
		}},
		Positions: merge.PositionMap{Entries: []merge.PositionEntry{
			{ChangeID: "ch-1", LocationKey: loc.Key(), AppliedOffset: 4, CurrentOffset: 4, Delta: 7},
		}},
		Entries: []audit.Entry{
			{Sequence: 1, Kind: audit.KindFeedbackSubmitted, ActorUserID: "r-1", ActorRole: "TECHNICAL_REVIEWER", Summary: "MAJOR feedback", At: at},
			{Sequence: 2, Kind: audit.KindChangeApplied, ActorUserID: "opr-1", ActorRole: "OPR", Summary: "applied feedback fb-1", At: at},
		},
		GeneratedAt: at,
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatExcel, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("docx")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, sampleReview()))

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, []string{"Changes", "Feedback", "Audit"}, file.GetSheetList())

	rows, err := file.GetRows("Changes")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Sequence", rows[0][0])
	assert.Equal(t, "1:2:3", rows[1][2])
	assert.Equal(t, "LONGERWORD", rows[1][5])
	assert.Equal(t, "Current Offset", rows[0][7])
	assert.Equal(t, "4", rows[1][7])

	rows, err = file.GetRows("Audit")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestWriteAuditCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAuditCSV(&buf, sampleReview()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Sequence", "At", "Kind", "Actor", "Role", "Summary"}, records[0])
	assert.Equal(t, []string{"2", "2026-03-01T09:00:00Z", "change_applied", "opr-1", "OPR", "applied feedback fb-1"}, records[2])
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, sampleReview()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
