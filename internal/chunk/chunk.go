// Package chunk splits raw log text into overlapping segments so that
// large documents can be analyzed in bounded, parallel units.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when a document contains no analyzable content.
var ErrEmptyInput = errors.New("no log content to analyze")

// Segment is a contiguous slice of the input document. Consecutive
// segments overlap so that an error spanning a boundary is visible in
// full context to at least one segment.
type Segment struct {
	Index int    // position within the document, starting at 0
	Text  string // segment content
	Start int    // byte offset of the first byte in the document
	End   int    // byte offset one past the last byte
}

// Chunker produces overlapping segments of a fixed target size.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Overlap must satisfy 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive (got %d)", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size (got size=%d, overlap=%d)", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured target segment size in bytes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap between consecutive segments.
func (c *Chunker) Overlap() int { return c.overlap }

// Split divides text into ordered segments. Every segment except
// possibly the last has length exactly equal to the chunk size, each
// consecutive pair overlaps by exactly the configured overlap, and the
// final segment ends at the document's end. A document shorter than the
// chunk size yields a single segment covering the whole document.
//
// Returns ErrEmptyInput when the text is empty or whitespace-only.
func (c *Chunker) Split(text string) ([]Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	n := len(text)
	if n <= c.size {
		return []Segment{{Index: 0, Text: text, Start: 0, End: n}}, nil
	}

	step := c.size - c.overlap
	segments := make([]Segment, 0, (n+step-1)/step)
	for start := 0; ; start += step {
		end := start + c.size
		if end >= n {
			segments = append(segments, Segment{
				Index: len(segments),
				Text:  text[start:],
				Start: start,
				End:   n,
			})
			break
		}
		segments = append(segments, Segment{
			Index: len(segments),
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
	}

	return segments, nil
}
