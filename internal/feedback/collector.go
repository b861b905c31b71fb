package feedback

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
)

// SubmitRequest is the loosely-typed submission as received from reviewers.
type SubmitRequest struct {
	Page          int    `json:"page"`
	Paragraph     int    `json:"paragraph"`
	Line          int    `json:"line"`
	OriginalText  string `json:"original_text"`
	SuggestedText string `json:"suggested_text"`
	Severity      string `json:"severity"`
	Comment       string `json:"comment"`
	Justification string `json:"justification"`
	ReviewerID    string `json:"reviewer_id"`
}

// submission is the normalized shape that validation runs against. Edit text is stored
// as submitted; only the copy validated here is trimmed.
type submission struct {
	Page         int      `json:"page" validate:"gte=1"`
	Paragraph    int      `json:"paragraph" validate:"gte=1"`
	Line         int      `json:"line" validate:"gte=1"`
	OriginalText string   `json:"original_text" validate:"required"`
	Severity     Severity `json:"severity" validate:"oneof=CRITICAL MAJOR SUBSTANTIVE ADMINISTRATIVE"`
	ReviewerID   string   `json:"reviewer_id" validate:"required"`
}

// severityAliases maps the comment-type codes used on review forms to severities.
var severityAliases = map[string]Severity{
	"C":              SeverityCritical,
	"CRITICAL":       SeverityCritical,
	"M":              SeverityMajor,
	"MAJOR":          SeverityMajor,
	"S":              SeveritySubstantive,
	"SUBSTANTIVE":    SeveritySubstantive,
	"A":              SeverityAdministrative,
	"ADMIN":          SeverityAdministrative,
	"ADMINISTRATIVE": SeverityAdministrative,
}

// NormalizeSeverity maps any accepted spelling to the canonical severity. Unknown input is returned upper-cased.
func NormalizeSeverity(raw string) Severity {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if s, ok := severityAliases[key]; ok {
		return s
	}
	return Severity(key)
}

// Collector accepts and validates reviewer submissions.
type Collector struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewCollector creates a collector using the wall clock.
func NewCollector() *Collector {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Collector{validate: v, now: time.Now}
}

// WithClock overrides the collector clock.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

// Submit normalizes and validates a submission and returns it as a pending item.
// The caller owns persistence and computing the offset hint.
func (c *Collector) Submit(documentID string, req SubmitRequest) (Item, error) {
	if documentID == "" {
		return Item{}, apperrors.New(apperrors.CodeValidation, "document id is required").With("fields", "document_id")
	}

	s := submission{
		Page:         req.Page,
		Paragraph:    req.Paragraph,
		Line:         req.Line,
		OriginalText: strings.TrimSpace(req.OriginalText),
		Severity:     NormalizeSeverity(req.Severity),
		ReviewerID:   strings.TrimSpace(req.ReviewerID),
	}
	if err := c.validate.Struct(s); err != nil {
		return Item{}, validationError(err)
	}

	now := c.now().UTC()
	return Item{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		Location:      Location{Page: s.Page, Paragraph: s.Paragraph, Line: s.Line},
		OriginalText:  req.OriginalText,
		SuggestedText: req.SuggestedText,
		Severity:      s.Severity,
		ReviewerID:    s.ReviewerID,
		Comment:       strings.TrimSpace(req.Comment),
		Justification: strings.TrimSpace(req.Justification),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.CodeValidation, "invalid feedback", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return apperrors.New(apperrors.CodeValidation, "invalid feedback: missing or malformed fields").
		With("fields", strings.Join(fields, ","))
}

// List returns the items matching f ordered by severity, then location, then submission time.
func List(items []Item, f Filter) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if f.matches(it) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Location != b.Location {
			return a.Location.Less(b.Location)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
