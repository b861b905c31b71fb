package feedback

import (
	"sort"
	"time"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
)

// ConflictGroup is a set of two or more pending items anchored to the same location.
type ConflictGroup struct {
	Key        string      `json:"key"`
	Location   Location    `json:"location"`
	Members    []Item      `json:"members"`
	Resolution *Resolution `json:"resolution,omitempty"`
}

// Resolution is the explicit human choice that settles a conflict group.
// Exactly one of ChosenFeedbackID and CustomText is set.
type Resolution struct {
	ChosenFeedbackID string  `json:"chosen_feedback_id,omitempty"`
	CustomText       *string `json:"custom_text,omitempty"`
	// OriginalText selects the replaced span for a custom override when members disagree on it.
	OriginalText string    `json:"original_text,omitempty"`
	ResolvedBy   string    `json:"resolved_by"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// Detect groups pending items by exact location. Groups of two or more are conflicts;
// the rest are returned as singletons that can be applied directly.
func Detect(items []Item) (groups []ConflictGroup, singles []Item) {
	byKey := make(map[string][]Item)
	for _, it := range items {
		if !it.IsPending() {
			continue
		}
		k := it.Location.Key()
		byKey[k] = append(byKey[k], it)
	}

	for k, members := range byKey {
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.Before(members[j].CreatedAt)
			}
			return members[i].ID < members[j].ID
		})
		if len(members) == 1 {
			singles = append(singles, members[0])
			continue
		}
		groups = append(groups, ConflictGroup{Key: k, Location: members[0].Location, Members: members})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Location.Less(groups[j].Location) })
	sort.SliceStable(singles, func(i, j int) bool { return singles[i].Location.Less(singles[j].Location) })
	return groups, singles
}

// FindGroup returns the conflict group with the given key. A malformed key is a validation error.
func FindGroup(items []Item, key string) (ConflictGroup, error) {
	if _, err := ParseLocationKey(key); err != nil {
		return ConflictGroup{}, err
	}
	groups, _ := Detect(items)
	for _, g := range groups {
		if g.Key == key {
			return g, nil
		}
	}
	return ConflictGroup{}, apperrors.New(apperrors.CodeNotFound, "no unresolved conflict at location").With("conflict_key", key)
}

// InConflict reports whether the pending item shares its location with another pending item.
func InConflict(items []Item, it Item) bool {
	for _, other := range items {
		if other.ID != it.ID && other.IsPending() && other.Location == it.Location {
			return true
		}
	}
	return false
}

// Member returns the group member with the given id.
func (g ConflictGroup) Member(id string) (Item, bool) {
	for _, m := range g.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Item{}, false
}

// Validate checks that r is an explicit, well-formed choice for g.
func (r Resolution) Validate(g ConflictGroup) error {
	hasChoice := r.ChosenFeedbackID != ""
	hasCustom := r.CustomText != nil
	if hasChoice == hasCustom {
		return apperrors.New(apperrors.CodeValidation, "exactly one of chosen_feedback_id or custom_text is required").
			With("conflict_key", g.Key)
	}
	if hasChoice {
		if _, ok := g.Member(r.ChosenFeedbackID); !ok {
			return apperrors.New(apperrors.CodeValidation, "chosen feedback is not a member of the conflict group").
				With("conflict_key", g.Key).
				With("feedback_id", r.ChosenFeedbackID)
		}
		return nil
	}
	_, err := r.ReplacedText(g)
	return err
}

// ReplacedText returns the span a custom override replaces: the members' shared original text,
// or the explicit OriginalText when they disagree.
func (r Resolution) ReplacedText(g ConflictGroup) (string, error) {
	if r.OriginalText != "" {
		return r.OriginalText, nil
	}
	shared := g.Members[0].OriginalText
	for _, m := range g.Members[1:] {
		if m.OriginalText != shared {
			return "", apperrors.New(apperrors.CodeValidation, "members disagree on original text; original_text is required").
				With("conflict_key", g.Key)
		}
	}
	return shared, nil
}
