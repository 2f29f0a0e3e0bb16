package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbchat/internal/domain"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Dim: 2,
		Vectors: [][]float32{
			{1, 0},
			{0, 1},
		},
		Records: []domain.EmbeddingRecord{
			{ChunkHash: "h1", SourceID: "a", Title: "A", Text: "first", Position: 0},
			{ChunkHash: "h2", SourceID: "b", Title: "B", Text: "second", Position: 0},
		},
	}
}

func TestInstallAndReload(t *testing.T) {
	dir := t.TempDir()
	ix := Open(dir, zap.NewNop())
	require.NoError(t, ix.Install(testSnapshot()))

	reopened := Open(dir, zap.NewNop())
	snap, err := reopened.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Dim)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, testSnapshot().Records, snap.Records)
	assert.Equal(t, testSnapshot().Vectors, snap.Vectors)
}

func TestSnapshotNotIndexed(t *testing.T) {
	ix := Open(t.TempDir(), zap.NewNop())
	_, err := ix.Snapshot()
	require.ErrorIs(t, err, domain.ErrNotIndexed)

	// The failure is cached; a second call repeats it without re-reading.
	_, err = ix.Snapshot()
	require.ErrorIs(t, err, domain.ErrNotIndexed)
}

func TestSnapshotMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Open(dir, zap.NewNop()).Install(testSnapshot()))
	require.NoError(t, os.Remove(filepath.Join(dir, metaFile)))

	_, err := Open(dir, zap.NewNop()).Snapshot()
	require.ErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestSnapshotRecordCountMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Open(dir, zap.NewNop()).Install(testSnapshot()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaFile), []byte(`[]`), 0o644))

	_, err := Open(dir, zap.NewNop()).Snapshot()
	require.ErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestSnapshotTruncatedMatrix(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Open(dir, zap.NewNop()).Install(testSnapshot()))

	path := filepath.Join(dir, vectorsFile)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	_, err = Open(dir, zap.NewNop()).Snapshot()
	require.ErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestSnapshotBadHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Open(dir, zap.NewNop()).Install(testSnapshot()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorsFile), []byte("not a matrix at all"), 0o644))

	_, err := Open(dir, zap.NewNop()).Snapshot()
	require.ErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestInstallRejectsInconsistentSnapshot(t *testing.T) {
	ix := Open(t.TempDir(), zap.NewNop())

	short := testSnapshot()
	short.Records = short.Records[:1]
	require.ErrorIs(t, ix.Install(short), domain.ErrCorruptIndex)

	ragged := testSnapshot()
	ragged.Vectors[1] = []float32{1, 2, 3}
	require.ErrorIs(t, ix.Install(ragged), domain.ErrCorruptIndex)
}

func TestInstallSwapsActiveVersion(t *testing.T) {
	ix := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, ix.Install(testSnapshot()))

	next := testSnapshot()
	next.Records = append(next.Records, domain.EmbeddingRecord{ChunkHash: "h3", SourceID: "c", Text: "third"})
	next.Vectors = append(next.Vectors, []float32{0.6, 0.8})
	require.NoError(t, ix.Install(next))

	snap, err := ix.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
}

func TestInvalidateRetriesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	ix := Open(dir, zap.NewNop())
	_, err := ix.Snapshot()
	require.ErrorIs(t, err, domain.ErrNotIndexed)

	// Another instance builds the index into the same directory.
	require.NoError(t, Open(dir, zap.NewNop()).Install(testSnapshot()))

	_, err = ix.Snapshot()
	require.ErrorIs(t, err, domain.ErrNotIndexed)

	ix.Invalidate()
	snap, err := ix.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	ix := Open(dir, zap.NewNop())
	require.NoError(t, ix.Install(testSnapshot()))
	require.NoError(t, ix.Reset())

	_, err := ix.Snapshot()
	require.ErrorIs(t, err, domain.ErrNotIndexed)
}
