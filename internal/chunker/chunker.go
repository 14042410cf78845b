// Package chunker turns raw extracted document text into an ordered sequence
// of overlapping chunks suitable for semantic indexing. Splitting is
// rune-based so multi-byte alphabets are never cut mid-character, and break
// points prefer sentence boundaries because cutting mid-sentence degrades
// downstream relevance ranking.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultTargetSize is the default chunk window length in runes.
const DefaultTargetSize = 800

// DefaultOverlapRatio is the default fraction of the window shared between
// consecutive chunks, so queries whose answer straddles a boundary still
// match a single chunk.
const DefaultOverlapRatio = 0.25

// Normalize strips control-character artifacts left behind by PDF text
// extraction and collapses whitespace runs, while preserving accented and
// non-Latin letters. Newlines survive as single '\n' runes because they act
// as chunk break points.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var prevSpace, prevNewline bool
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			if !prevNewline {
				// Collapse trailing spaces before the newline.
				trimTrailingSpace(&b)
				b.WriteRune('\n')
			}
			prevNewline = true
			prevSpace = false
		case unicode.IsControl(r):
			// PDF extraction artifacts (NUL, form feeds, etc.) — drop.
		case unicode.IsSpace(r):
			if !prevSpace && !prevNewline && b.Len() > 0 {
				b.WriteRune(' ')
			}
			prevSpace = true
			prevNewline = false
		default:
			b.WriteRune(r)
			prevSpace = false
			prevNewline = false
		}
	}

	return strings.TrimSpace(b.String())
}

// trimTrailingSpace removes a single trailing space from the builder, which
// is the only trailing whitespace Normalize can have produced.
func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	if strings.HasSuffix(s, " ") {
		b.Reset()
		b.WriteString(s[:len(s)-1])
	}
}

// Split normalizes text and slices it into overlapping chunks of at most
// targetSize runes. At each window boundary it searches backward, within the
// final third of the window, for the best break point in priority order:
// sentence-ending punctuation, then ';'/':' , then newline, then comma, then
// whitespace, falling back to a hard cut at the window edge. The next window
// starts overlap runes before the previous cut.
//
// A trailing remainder shorter than the overlap is absorbed into the final
// chunk rather than emitted as a sliver.
//
// Split is deterministic: the same text and parameters always produce the
// same chunk sequence.
func Split(text string, targetSize int, overlapRatio float64) []string {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlapRatio < 0 || overlapRatio >= 1 {
		overlapRatio = DefaultOverlapRatio
	}

	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	if len(runes) <= targetSize {
		return []string{normalized}
	}

	overlap := int(float64(targetSize) * overlapRatio)
	// findBreak never cuts earlier than two thirds into the window, so the
	// overlap must stay shorter than that distance or start stops advancing.
	if maxOverlap := targetSize - targetSize/3 - 1; overlap > maxOverlap {
		overlap = maxOverlap
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + targetSize
		if end >= len(runes) || len(runes)-end < overlap {
			// Final window: emit everything that remains. Remainders
			// shorter than the overlap are already covered by the
			// previous chunk's tail, so extending here avoids slivers.
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := findBreak(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}

	return chunks
}

// breakClasses orders break-point candidates from best to worst. Sentence
// ends keep chunks self-contained; comma and space cuts are last resorts.
var breakClasses = []string{".!?", ";:", "\n", ",", " "}

// findBreak returns the cut position (exclusive) for the window
// runes[start:end]. It scans each break class in priority order and returns
// one past the occurrence closest to end, restricted to the final third of
// the window. If no class matches there, the window is cut hard at end.
func findBreak(runes []rune, start, end int) int {
	limit := end - (end-start)/3

	for _, class := range breakClasses {
		for i := end - 1; i >= limit; i-- {
			if strings.ContainsRune(class, runes[i]) {
				return i + 1
			}
		}
	}

	return end
}
