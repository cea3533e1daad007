package ingestion_engine

import (
	"maps"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultChunkSize is the maximum number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
const DefaultChunkOverlap = 200

var _ textsplitter.TextSplitter = (*Chunker)(nil)

// Chunker splits segments into fixed windows of characters (code points).
// Windows never span two segments.
type Chunker struct {
	size    int
	overlap int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the window size in characters.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithChunkOverlap sets the overlap between consecutive windows in characters.
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	// the window must always advance
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Split chunks every segment in order. Chunk indexes are global to the
// document; offsets are relative to the segment.
func (c *Chunker) Split(segments []core.Segment) []core.Chunk {
	var chunks []core.Chunk
	for _, seg := range segments {
		for _, w := range c.windows(seg.Text) {
			idx := len(chunks)

			md := make(map[string]any, len(seg.Metadata)+3)
			maps.Copy(md, seg.Metadata)
			md["segment"] = seg.Index
			md["offset"] = w.offset
			md["chunk_index"] = idx

			chunks = append(chunks, core.Chunk{
				Index:        idx,
				SegmentIndex: seg.Index,
				Offset:       w.offset,
				Text:         w.text,
				Metadata:     md,
			})
		}
	}
	return chunks
}

// SplitText splits a single text into window strings.
func (c *Chunker) SplitText(text string) ([]string, error) {
	ws := c.windows(text)
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.text
	}
	return out, nil
}

type window struct {
	offset int
	text   string
}

// windows returns ceil((L-overlap)/(size-overlap)) windows for L > size, one
// window for 0 < L <= size and none for empty text. The last window ends at L.
func (c *Chunker) windows(text string) []window {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.size - c.overlap
	out := make([]window, 0, n/step+1)
	for start := 0; ; start += step {
		end := min(start+c.size, n)
		out = append(out, window{offset: start, text: string(runes[start:end])})
		if end == n {
			break
		}
	}
	return out
}
