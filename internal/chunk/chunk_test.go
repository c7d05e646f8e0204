package chunk

import (
	"errors"
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 2000, 200, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -1, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, err := New(2000, 200)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\n\t"} {
		_, err := c.Split(text)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Split(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
}

func TestSplitShortDocument(t *testing.T) {
	c, _ := New(2000, 200)

	segs, err := c.Split("short log line")
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("Split() returned %d segments, want 1", len(segs))
	}
	if segs[0].Text != "short log line" || segs[0].Start != 0 || segs[0].End != 14 {
		t.Errorf("unexpected segment: %+v", segs[0])
	}
}

func TestSplitBoundaries(t *testing.T) {
	// 5000 bytes with size 2000 / overlap 200 must yield exactly
	// [0,2000), [1800,3800), [3600,5000).
	c, _ := New(2000, 200)
	doc := strings.Repeat("A", 5000)

	segs, err := c.Split(doc)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}

	want := []struct{ start, end int }{
		{0, 2000},
		{1800, 3800},
		{3600, 5000},
	}
	if len(segs) != len(want) {
		t.Fatalf("Split() returned %d segments, want %d", len(segs), len(want))
	}
	for i, w := range want {
		if segs[i].Start != w.start || segs[i].End != w.end {
			t.Errorf("segment %d = [%d,%d), want [%d,%d)", i, segs[i].Start, segs[i].End, w.start, w.end)
		}
		if segs[i].Index != i {
			t.Errorf("segment %d has index %d", i, segs[i].Index)
		}
	}
}

func TestSplitSegmentLengths(t *testing.T) {
	tests := []struct {
		size    int
		overlap int
		docLen  int
	}{
		{2000, 200, 5000},
		{100, 0, 1000},
		{100, 99, 350},
		{500, 250, 501},
		{64, 16, 4096},
	}

	for _, tt := range tests {
		c, err := New(tt.size, tt.overlap)
		if err != nil {
			t.Fatalf("New(%d, %d) failed: %v", tt.size, tt.overlap, err)
		}
		doc := strings.Repeat("x", tt.docLen)
		segs, err := c.Split(doc)
		if err != nil {
			t.Fatalf("Split() failed: %v", err)
		}

		for i, s := range segs {
			if len(s.Text) > tt.size {
				t.Errorf("size=%d overlap=%d: segment %d length %d exceeds size", tt.size, tt.overlap, i, len(s.Text))
			}
			if i < len(segs)-1 && len(s.Text) != tt.size {
				t.Errorf("size=%d overlap=%d: non-final segment %d length %d, want %d", tt.size, tt.overlap, i, len(s.Text), tt.size)
			}
		}
		if last := segs[len(segs)-1]; last.End != tt.docLen {
			t.Errorf("size=%d overlap=%d: final segment ends at %d, want %d", tt.size, tt.overlap, last.End, tt.docLen)
		}
	}
}

func TestSplitReconstruction(t *testing.T) {
	// Concatenating segments with the overlap stripped from every
	// segment after the first must reproduce the document exactly.
	docs := []string{
		strings.Repeat("error: connection refused\n", 300),
		strings.Repeat("abcdefghij", 777),
		"2024-01-01 ERROR boom\n" + strings.Repeat("INFO ok\n", 900),
	}

	for _, overlap := range []int{0, 50, 199} {
		c, err := New(200, overlap)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		for di, doc := range docs {
			segs, err := c.Split(doc)
			if err != nil {
				t.Fatalf("Split() failed: %v", err)
			}

			var b strings.Builder
			for i, s := range segs {
				if i == 0 {
					b.WriteString(s.Text)
					continue
				}
				b.WriteString(s.Text[overlap:])
			}
			if b.String() != doc {
				t.Errorf("doc %d overlap %d: reconstruction mismatch (got %d bytes, want %d)", di, overlap, b.Len(), len(doc))
			}
		}
	}
}

func TestSplitOffsetsMonotonic(t *testing.T) {
	c, _ := New(128, 32)
	doc := strings.Repeat("line\n", 500)

	segs, err := c.Split(doc)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	for i := 1; i < len(segs); i++ {
		if segs[i].Start < segs[i-1].Start {
			t.Errorf("segment %d start %d precedes segment %d start %d", i, segs[i].Start, i-1, segs[i-1].Start)
		}
		if segs[i].Start > segs[i-1].End {
			t.Errorf("gap between segment %d end %d and segment %d start %d", i-1, segs[i-1].End, i, segs[i].Start)
		}
		if doc[segs[i].Start:segs[i].End] != segs[i].Text {
			t.Errorf("segment %d text does not match its offsets", i)
		}
	}
}
