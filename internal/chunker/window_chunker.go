package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"kbchat/internal/domain"
)

// WindowChunker splits normalized text into fixed-size character windows
// with overlap. Identical (text, size, overlap) always yields the identical
// chunk sequence; the embedding cache depends on that.
type WindowChunker struct {
	size    int
	overlap int
}

var _ domain.Chunker = (*WindowChunker)(nil)

// New validates the window parameters and returns a chunker.
func New(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got %d", domain.ErrInvalidConfiguration, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk walks the document text in windows of size characters, advancing
// by size-overlap each step. The final window may be shorter and is kept
// if non-empty. A document shorter than size yields exactly one chunk.
func (c *WindowChunker) Chunk(doc domain.Document) []domain.Chunk {
	text := Normalize(doc.Text)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []domain.Chunk
	for start, pos := 0, 0; start < len(runes); start, pos = start+step, pos+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[start:end])
		chunks = append(chunks, domain.Chunk{
			SourceID: doc.SourceID,
			Title:    doc.Title,
			Text:     piece,
			Hash:     HashText(piece),
			Position: pos,
			Start:    start,
			End:      end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Normalize collapses whitespace runs into single spaces and trims the
// ends, so the same content always hashes the same regardless of layout.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// HashText returns the stable content hash used for embedding dedup.
func HashText(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
