package merge

import "slices"

// PositionEntry tracks where an applied change currently sits in the content.
type PositionEntry struct {
	ChangeID      string `json:"change_id"`
	LocationKey   string `json:"location_key"`
	AppliedOffset int    `json:"applied_offset"`
	CurrentOffset int    `json:"current_offset"`
	Delta         int    `json:"delta"`
}

// PositionMap records the signed drift introduced by each applied change.
type PositionMap struct {
	Entries []PositionEntry `json:"entries"`
}

// Clone returns an independent copy.
func (m PositionMap) Clone() PositionMap {
	return PositionMap{Entries: slices.Clone(m.Entries)}
}

// Shift moves every entry at or after point by delta. Offsets never cross point.
func (m *PositionMap) Shift(point, delta int) {
	for i := range m.Entries {
		m.Entries[i].CurrentOffset = shift(m.Entries[i].CurrentOffset, point, delta)
	}
}

// Record appends the entry for a new change.
func (m *PositionMap) Record(e PositionEntry) {
	m.Entries = append(m.Entries, e)
}

// Drift returns the cumulative signed offset contributed by changes located at or before
// offset in the current content.
func (m PositionMap) Drift(offset int) int {
	total := 0
	for _, e := range m.Entries {
		if e.CurrentOffset <= offset {
			total += e.Delta
		}
	}
	return total
}

// Entry returns the entry for a change.
func (m PositionMap) Entry(changeID string) (PositionEntry, bool) {
	for _, e := range m.Entries {
		if e.ChangeID == changeID {
			return e, true
		}
	}
	return PositionEntry{}, false
}

func shift(offset, point, delta int) int {
	if offset < point {
		return offset
	}
	offset += delta
	if offset < point {
		offset = point
	}
	return offset
}
