package merge

import (
	"regexp"
	"strings"

	"docreview/review-portal/review-portal-backend/internal/feedback"
)

// Content layout: pages are separated by form feeds, paragraphs by blank lines and
// lines by newlines. Locations are 1-based.

// LineOffset returns the byte offset of the start of the line at loc. When loc does not exist,
// the start of the last line that precedes it is returned.
func LineOffset(content string, loc feedback.Location) int {
	best := 0
	pageStart := 0
	for pageIdx, page := range strings.Split(content, "\f") {
		pageNum := pageIdx + 1
		paragraph, line := 0, 0
		inParagraph := false
		lineStart := pageStart
		for _, text := range strings.SplitAfter(page, "\n") {
			if strings.TrimSpace(text) == "" {
				inParagraph = false
			} else {
				if !inParagraph {
					paragraph++
					line = 0
					inParagraph = true
				}
				line++
				here := feedback.Location{Page: pageNum, Paragraph: paragraph, Line: line}
				if here == loc {
					return lineStart
				}
				if here.Less(loc) {
					best = lineStart
				}
			}
			lineStart += len(text)
		}
		pageStart += len(page) + 1
	}
	return best
}

// Hint resolves the offset hint for text anchored at loc. The first occurrence starting inside
// the line wins; otherwise the occurrence nearest the line start, otherwise the line start itself.
func Hint(content string, loc feedback.Location, text string) int {
	anchor := LineOffset(content, loc)
	if text == "" {
		return anchor
	}
	end := len(content)
	if i := strings.IndexAny(content[anchor:], "\n\f"); i >= 0 {
		end = anchor + i
	}
	if i := strings.Index(content[anchor:], text); i >= 0 && anchor+i < end {
		return anchor + i
	}
	if idx, ok := Nearest(content, text, anchor); ok {
		return idx
	}
	return anchor
}

// Nearest finds the occurrence of text closest to hint. Ties go to the earlier occurrence.
func Nearest(content, text string, hint int) (int, bool) {
	if text == "" {
		return 0, false
	}
	best, bestDist := -1, 0
	for from := 0; from <= len(content)-len(text); {
		i := strings.Index(content[from:], text)
		if i < 0 {
			break
		}
		idx := from + i
		dist := idx - hint
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = idx, dist
		}
		from = idx + 1
	}
	return best, best >= 0
}

// DefaultAnchors match section headers: markdown headings, HTML headings and
// CHAPTER/SECTION/ATTACHMENT lines.
var DefaultAnchors = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^#{1,6}[ \t]+\S`),
	regexp.MustCompile(`(?i)<h[1-6][\s>]`),
	regexp.MustCompile(`(?m)^[ \t]*(?:CHAPTER|SECTION|ATTACHMENT)[ \t]+[0-9A-Z]+`),
}

// countAnchors counts structural anchors in content.
func countAnchors(content string, anchors []*regexp.Regexp) int {
	n := 0
	for _, re := range anchors {
		n += len(re.FindAllStringIndex(content, -1))
	}
	return n
}
