package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbchat/internal/domain"
)

func TestNewRejectsInvalidParameters(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.overlap)
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestChunkShortDocument(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	chunks := c.Chunk(domain.Document{SourceID: "doc", Title: "Doc", Text: "hello world"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, "doc", chunks[0].SourceID)
	assert.Equal(t, "Doc", chunks[0].Title)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 11, chunks[0].End)
}

func TestChunkWindowsAndOverlap(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Chunk(domain.Document{SourceID: "doc", Text: "abcdefghij"})
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "defg", chunks[1].Text)
	assert.Equal(t, "ghij", chunks[2].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
	}
	assert.Equal(t, 3, chunks[1].Start)
	assert.Equal(t, 7, chunks[1].End)
}

func TestChunkKeepsShortFinalWindow(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Chunk(domain.Document{SourceID: "doc", Text: "abcdefgh"})
	require.Len(t, chunks, 3)
	assert.Equal(t, "gh", chunks[2].Text)
	assert.Equal(t, 8, chunks[2].End)
}

func TestChunkEmptyDocument(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)
	assert.Empty(t, c.Chunk(domain.Document{SourceID: "doc", Text: "   \n\t "}))
}

func TestChunkDeterministic(t *testing.T) {
	c, err := New(20, 5)
	require.NoError(t, err)

	doc := domain.Document{SourceID: "doc", Text: "the quick brown fox jumps over the lazy dog again and again"}
	first := c.Chunk(doc)
	second := c.Chunk(doc)
	require.Equal(t, first, second)
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a \t b\n\n c  "))
	assert.Equal(t, "", Normalize(" \n "))
}

func TestHashTextIsLayoutIndependent(t *testing.T) {
	a := HashText(Normalize("same   content\nhere"))
	b := HashText(Normalize("same content here"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashText("different content"))
}

func TestIdenticalTextSharesHashAcrossSources(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	first := c.Chunk(domain.Document{SourceID: "a", Text: "shared paragraph"})
	second := c.Chunk(domain.Document{SourceID: "b", Text: "shared paragraph"})
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Hash, second[0].Hash)
	assert.NotEqual(t, first[0].SourceID, second[0].SourceID)
}
