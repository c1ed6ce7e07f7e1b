// Package chunker splits documents into overlapping, size-bounded chunks.
//
// Break points are chosen recursively by preference: paragraph breaks first,
// then line breaks, sentence ends, word boundaries, and finally a hard cut at
// the size limit. Every chunk is at most Size characters (runes), consecutive
// chunks overlap by at most Overlap characters, and together the chunks cover
// the whole document with no gap and no dropped tail.
package chunker

import (
	"fmt"
	"unicode"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 50

// DefaultSeparators lists break points in order of preference. A hard cut is
// used when none of them occurs in the window.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Span is a chunk of text with its rune offsets in the source.
type Span struct {
	// Text is the chunk text.
	Text string

	// Start is the rune offset of the first character.
	Start int

	// End is the exclusive rune offset of the end.
	End int
}

// Chunker splits text. It is immutable after New and safe for concurrent use.
type Chunker struct {
	size       int
	overlap    int
	separators [][]rune
}

// Option configures a Chunker.
type Option func(*options)

type options struct {
	size       int
	overlap    int
	separators []string
}

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(o *options) { o.size = size }
}

// WithOverlap sets the maximum overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(o *options) { o.overlap = overlap }
}

// WithSeparators replaces the break-point preference list.
func WithSeparators(seps ...string) Option {
	return func(o *options) { o.separators = seps }
}

// New returns a Chunker. It rejects a non-positive size, a negative overlap,
// and an overlap that is not smaller than the size.
func New(opts ...Option) (*Chunker, error) {
	o := options{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.size <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", o.size)
	}
	if o.overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", o.overlap)
	}
	if o.overlap >= o.size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than chunk size %d", o.overlap, o.size)
	}

	c := &Chunker{size: o.size, overlap: o.overlap}
	for _, s := range o.separators {
		if s != "" {
			c.separators = append(c.separators, []rune(s))
		}
	}
	return c, nil
}

// Size returns the configured maximum chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured maximum overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document. Each chunk records its parent document and
// its offsets into the parent text.
func (c *Chunker) Split(docs []rag.Document) []rag.Chunk {
	var out []rag.Chunk
	for _, d := range docs {
		for _, s := range c.SplitText(d.Text) {
			out = append(out, rag.Chunk{
				ID:          rag.ChunkID(d.ID, s.Start),
				DocumentID:  d.ID,
				SourcePath:  d.SourcePath,
				Page:        d.Metadata.Page,
				Text:        s.Text,
				StartOffset: s.Start,
				EndOffset:   s.End,
			})
		}
	}
	return out
}

// SplitText splits text into spans. Empty text yields no spans.
func (c *Chunker) SplitText(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for {
		end := min(start+c.size, n)
		if end < n {
			end = c.breakPoint(runes, start, end)
		}
		spans = append(spans, Span{Text: string(runes[start:end]), Start: start, End: end})
		if end == n {
			return spans
		}
		start = c.nextStart(runes, start, end)
	}
}

// breakPoint returns the preferred cut in (start+overlap, limit]. Keeping the
// cut beyond start+overlap guarantees the next chunk starts after this one.
func (c *Chunker) breakPoint(runes []rune, start, limit int) int {
	lo := start + c.overlap + 1
	for _, sep := range c.separators {
		for i := limit - len(sep); i+len(sep) >= lo && i >= start; i-- {
			if hasPrefix(runes[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return limit
}

// nextStart returns where the chunk after [start, end) begins: overlap
// characters before end, moved forward to the next word start when one lies
// inside the overlap window.
func (c *Chunker) nextStart(runes []rune, start, end int) int {
	next := max(end-c.overlap, start+1)
	for i := next; i < end; i++ {
		if unicode.IsSpace(runes[i-1]) && !unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return next
}

func hasPrefix(r, prefix []rune) bool {
	if len(r) < len(prefix) {
		return false
	}
	for i := range prefix {
		if r[i] != prefix[i] {
			return false
		}
	}
	return true
}
