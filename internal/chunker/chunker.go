package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// sentenceLookback is how far behind a window end we search for a
	// sentence-terminal character to snap the window to.
	sentenceLookback = 100
	// charsPerToken is the fixed character-to-token ratio used for the
	// token estimate. Not real tokenization.
	charsPerToken = 4
)

// Draft is a chunk produced from a document's text, before it is persisted.
// Offsets are rune offsets into the document's concatenated page text.
type Draft struct {
	Text          string
	Index         int // 0-based position within the document
	PageNumber    int // 1-based page owning the window's midpoint
	StartChar     int
	EndChar       int
	TokenEstimate int
}

// Chunker splits page-indexed text into overlapping, page-attributed chunks.
type Chunker struct {
	size    int // target window length in runes
	overlap int // runes shared between consecutive windows
}

// New creates a chunker with the given target window size and overlap.
func New(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

type pageRange struct {
	page  int
	start int // inclusive
	end   int // exclusive
}

// Split concatenates pages in page-number order and walks a sliding window
// over the combined text, snapping window ends to nearby sentence boundaries.
// Empty input, or input whose chunks are all whitespace, yields no drafts.
// The walk always terminates, including for overlap >= size.
func (c *Chunker) Split(pages map[int]string) []Draft {
	if len(pages) == 0 {
		return nil
	}

	pageNums := make([]int, 0, len(pages))
	for n := range pages {
		pageNums = append(pageNums, n)
	}
	sort.Ints(pageNums)

	var buf []rune
	ranges := make([]pageRange, 0, len(pageNums))
	for _, n := range pageNums {
		start := len(buf)
		buf = append(buf, []rune(pages[n])...)
		buf = append(buf, '\n')
		ranges = append(ranges, pageRange{page: n, start: start, end: len(buf)})
	}

	var drafts []Draft
	index := 0
	start := 0
	for start < len(buf) {
		// end may point past the buffer; the window advance uses the raw
		// value so the walk cannot stall on the final partial window.
		end := start + c.size
		if end < len(buf) {
			// Only accept a snap that keeps the next window start moving
			// forward; otherwise the raw end preserves progress.
			if snapped := snapToSentence(buf, end); snapped > start+c.overlap {
				end = snapped
			}
		}
		sliceEnd := end
		if sliceEnd > len(buf) {
			sliceEnd = len(buf)
		}

		text := strings.TrimSpace(string(buf[start:sliceEnd]))
		if text != "" {
			mid := start + (sliceEnd-start)/2
			drafts = append(drafts, Draft{
				Text:          text,
				Index:         index,
				PageNumber:    pageForPosition(mid, ranges),
				StartChar:     start,
				EndChar:       sliceEnd,
				TokenEstimate: utf8.RuneCountInString(text) / charsPerToken,
			})
			index++
		}

		start = end - c.overlap
		if start <= 0 || start >= len(buf) {
			break
		}
	}

	return drafts
}

// snapToSentence searches backward from pos, within sentenceLookback runes,
// for the nearest sentence-terminal character and returns the position just
// after it. Returns pos unchanged when none is found.
func snapToSentence(buf []rune, pos int) int {
	limit := pos - sentenceLookback
	if limit < 0 {
		limit = 0
	}
	for i := pos - 1; i >= limit; i-- {
		switch buf[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return pos
}

// pageForPosition returns the page owning the given rune position, falling
// back to the last page when the position is past every recorded range.
func pageForPosition(pos int, ranges []pageRange) int {
	for _, r := range ranges {
		if r.start <= pos && pos < r.end {
			return r.page
		}
	}
	return ranges[len(ranges)-1].page
}
