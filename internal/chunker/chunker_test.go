package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/54b3r/cvgen-go/internal/rag"
)

func Test_New_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults", opts: nil},
		{name: "zero size", opts: []Option{WithChunkSize(0)}, wantErr: true},
		{name: "negative overlap", opts: []Option{WithOverlap(-1)}, wantErr: true},
		{name: "overlap equals size", opts: []Option{WithChunkSize(10), WithOverlap(10)}, wantErr: true},
		{name: "overlap larger than size", opts: []Option{WithChunkSize(10), WithOverlap(20)}, wantErr: true},
		{name: "zero overlap", opts: []Option{WithChunkSize(10), WithOverlap(0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.opts...)
			if (err != nil) != tc.wantErr {
				t.Errorf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func Test_New_Defaults(t *testing.T) {
	t.Parallel()
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if c.Size() != 500 || c.Overlap() != 50 {
		t.Errorf("want 500/50, got %d/%d", c.Size(), c.Overlap())
	}
}

func Test_SplitText_Empty(t *testing.T) {
	t.Parallel()
	c, _ := New()
	if spans := c.SplitText(""); len(spans) != 0 {
		t.Errorf("want no spans, got %d", len(spans))
	}
}

func Test_SplitText_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()
	c, _ := New(WithChunkSize(100), WithOverlap(10))
	spans := c.SplitText("Jane Doe, Go engineer")
	if len(spans) != 1 || spans[0].Text != "Jane Doe, Go engineer" || spans[0].Start != 0 || spans[0].End != 21 {
		t.Errorf("unexpected spans: %+v", spans)
	}
}

func Test_SplitText_PrefersParagraphBreak(t *testing.T) {
	t.Parallel()
	c, _ := New(WithChunkSize(20), WithOverlap(0))
	spans := c.SplitText("Hello world.\n\nSecond paragraph here.")
	if len(spans) < 2 {
		t.Fatalf("want at least 2 spans, got %+v", spans)
	}
	if spans[0].Text != "Hello world.\n\n" {
		t.Errorf("first span: want paragraph, got %q", spans[0].Text)
	}
}

func Test_SplitText_FallsBackToWordBoundary(t *testing.T) {
	t.Parallel()
	c, _ := New(WithChunkSize(12), WithOverlap(0))
	spans := c.SplitText("alpha beta gamma delta")
	if spans[0].Text != "alpha beta " {
		t.Errorf("want cut after a word, got %q", spans[0].Text)
	}
}

func Test_SplitText_HardCutWithoutSeparators(t *testing.T) {
	t.Parallel()
	c, _ := New(WithChunkSize(4), WithOverlap(1))
	spans := c.SplitText("abcdefghij")
	want := []string{"abcd", "defg", "ghij"}
	if len(spans) != len(want) {
		t.Fatalf("want %d spans, got %+v", len(want), spans)
	}
	for i, w := range want {
		if spans[i].Text != w {
			t.Errorf("span %d: want %q, got %q", i, w, spans[i].Text)
		}
	}
}

// checkInvariants asserts size, coverage, overlap and offset correctness.
func checkInvariants(t *testing.T, text string, spans []Span, size, overlap int) {
	t.Helper()
	runes := []rune(text)
	if len(runes) == 0 {
		if len(spans) != 0 {
			t.Errorf("empty text produced %d spans", len(spans))
		}
		return
	}
	if spans[0].Start != 0 {
		t.Errorf("first span starts at %d", spans[0].Start)
	}
	if last := spans[len(spans)-1]; last.End != len(runes) {
		t.Errorf("tail dropped: last span ends at %d of %d", last.End, len(runes))
	}
	for i, s := range spans {
		if n := utf8.RuneCountInString(s.Text); n > size || n == 0 {
			t.Errorf("span %d has %d runes (size %d)", i, n, size)
		}
		if s.Text != string(runes[s.Start:s.End]) {
			t.Errorf("span %d text does not match offsets", i)
		}
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		if s.Start <= prev.Start {
			t.Errorf("span %d does not advance: %d <= %d", i, s.Start, prev.Start)
		}
		if s.Start > prev.End {
			t.Errorf("gap between span %d and %d", i-1, i)
		}
		if prev.End-s.Start > overlap {
			t.Errorf("span %d overlaps by %d (max %d)", i, prev.End-s.Start, overlap)
		}
	}
}

func Test_SplitText_InvariantsOnRandomText(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(7, 11))
	words := []string{"Go", "engineer", "Kubernetes", "über", "naïve", "日本語", "résumé", "\n", "\n\n", ".", "!", "?", "  "}

	for trial := range 200 {
		var b strings.Builder
		for range r.IntN(400) {
			b.WriteString(words[r.IntN(len(words))])
			if r.IntN(3) > 0 {
				b.WriteByte(' ')
			}
		}
		size := 1 + r.IntN(60)
		overlap := r.IntN(size)
		c, err := New(WithChunkSize(size), WithOverlap(overlap))
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		checkInvariants(t, b.String(), c.SplitText(b.String()), size, overlap)
	}
}

func Test_SplitText_DefaultsOnLongDocument(t *testing.T) {
	t.Parallel()
	c, _ := New()
	text := strings.Repeat("Led a team of five engineers building payment services in Go. ", 80)
	spans := c.SplitText(text)
	if len(spans) < 10 {
		t.Errorf("want many spans, got %d", len(spans))
	}
	checkInvariants(t, text, spans, 500, 50)
}

func Test_Split_TracesChunksToDocuments(t *testing.T) {
	t.Parallel()
	c, _ := New(WithChunkSize(10), WithOverlap(2))
	docs := []rag.Document{
		{ID: "d1", SourcePath: "a.pdf", Text: "first page text here", Metadata: rag.Metadata{Page: 1}},
		{ID: "d2", SourcePath: "b.txt", Text: ""},
		{ID: "d3", SourcePath: "c.txt", Text: "short"},
	}
	chunks := c.Split(docs)

	seen := map[string]bool{}
	for _, ch := range chunks {
		seen[ch.DocumentID] = true
		if ch.DocumentID == "d1" && (ch.Page != 1 || ch.SourcePath != "a.pdf") {
			t.Errorf("metadata not propagated: %+v", ch)
		}
		if ch.ID == "" {
			t.Error("chunk without ID")
		}
	}
	if !seen["d1"] || seen["d2"] || !seen["d3"] {
		t.Errorf("unexpected document coverage: %v", seen)
	}
}
