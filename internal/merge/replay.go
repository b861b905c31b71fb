package merge

import (
	"encoding/hex"
	"slices"
	"strconv"

	"golang.org/x/crypto/blake2b"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
)

// Checksum is the hex BLAKE2b-256 digest of content, stamped on every version.
func Checksum(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Replay re-applies the change log, ordered by sequence, to original.
func Replay(original string, changes []AppliedChange) (string, error) {
	return replay(original, changes, nil)
}

func replay(original string, changes []AppliedChange, visit func(c AppliedChange, content string) error) (string, error) {
	ordered := slices.Clone(changes)
	slices.SortStableFunc(ordered, func(a, b AppliedChange) int { return a.Sequence - b.Sequence })

	content := original
	for _, c := range ordered {
		end := c.Offset + len(c.ReplacedText)
		if c.Offset < 0 || end > len(content) || content[c.Offset:end] != c.ReplacedText {
			return "", apperrors.New(apperrors.CodeInternal, "change log does not replay against content").
				With("change_id", c.ID).
				With("sequence", strconv.Itoa(c.Sequence)).
				With("offset", strconv.Itoa(c.Offset))
		}
		content = content[:c.Offset] + c.ActualAppliedText + content[end:]
		if visit != nil {
			if err := visit(c, content); err != nil {
				return "", err
			}
		}
	}
	return content, nil
}

// Verify checks that replaying w's change log over its original content yields its content and
// reproduces the checksum of every version along the way.
func Verify(w *Workspace) error {
	lastChange := make(map[string]Version, len(w.Versions))
	for _, v := range w.Versions {
		if n := len(v.Changes); n > 0 && v.Checksum != "" {
			lastChange[v.Changes[n-1]] = v
		}
	}

	replayed, err := replay(w.OriginalContent, w.Changes, func(c AppliedChange, content string) error {
		v, ok := lastChange[c.ID]
		if !ok || Checksum(content) == v.Checksum {
			return nil
		}
		return apperrors.New(apperrors.CodeInternal, "version checksum mismatch").
			With("version", strconv.Itoa(v.VersionNumber)).
			With("change_id", c.ID)
	})
	if err != nil {
		return err
	}
	if replayed != w.Content {
		return apperrors.New(apperrors.CodeInternal, "replayed content differs from current content").
			With("changes", strconv.Itoa(len(w.Changes)))
	}
	return nil
}
