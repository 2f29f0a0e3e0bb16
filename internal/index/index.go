package index

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"kbchat/internal/domain"
)

// Snapshot is one immutable index version: a dense vector matrix plus
// parallel metadata records, same count, same order.
type Snapshot struct {
	Dim     int
	Vectors [][]float32
	Records []domain.EmbeddingRecord
}

// Len returns the number of indexed chunks.
func (s *Snapshot) Len() int { return len(s.Records) }

type loadState int

const (
	stateNotLoaded loadState = iota
	stateReady
	stateFailed
)

// Index owns the persisted vector matrix and metadata for one
// knowledge-base directory. Loading is lazy and happens at most once per
// process unless a rebuild installs a new snapshot. Readers get snapshots
// through an atomic pointer and never observe a partially built version.
type Index struct {
	dir string
	log *zap.Logger

	mu      sync.Mutex
	state   loadState
	loadErr error
	current atomic.Pointer[Snapshot]
}

// Open returns an Index for dir without touching storage.
func Open(dir string, log *zap.Logger) *Index {
	return &Index{dir: dir, log: log}
}

// Snapshot returns the current index version, loading it from disk on
// first use. Returns domain.ErrNotIndexed when no build has ever
// succeeded and domain.ErrCorruptIndex when the persisted files disagree.
func (ix *Index) Snapshot() (*Snapshot, error) {
	if snap := ix.current.Load(); snap != nil {
		return snap, nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ix.state {
	case stateReady:
		return ix.current.Load(), nil
	case stateFailed:
		return nil, ix.loadErr
	}
	snap, err := readSnapshot(ix.dir)
	if err != nil {
		ix.state = stateFailed
		ix.loadErr = err
		ix.log.Warn("index load failed", zap.Error(err))
		return nil, err
	}
	ix.current.Store(snap)
	ix.state = stateReady
	ix.log.Info("index loaded", zap.Int("chunks", snap.Len()), zap.Int("dimension", snap.Dim))
	return snap, nil
}

// Install persists snap (temp files + rename) and swaps it in as the
// current version. All-or-nothing: on error the previous version stays
// active both in memory and on disk.
func (ix *Index) Install(snap *Snapshot) error {
	if len(snap.Vectors) != len(snap.Records) {
		return fmt.Errorf("%w: %d vectors for %d records",
			domain.ErrCorruptIndex, len(snap.Vectors), len(snap.Records))
	}
	for _, v := range snap.Vectors {
		if len(v) != snap.Dim {
			return fmt.Errorf("%w: row dimension %d, expected %d",
				domain.ErrCorruptIndex, len(v), snap.Dim)
		}
	}
	if err := writeSnapshot(ix.dir, snap); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.current.Store(snap)
	ix.state = stateReady
	ix.loadErr = nil
	ix.log.Info("index installed", zap.Int("chunks", snap.Len()), zap.Int("dimension", snap.Dim))
	return nil
}

// Invalidate forgets any cached load failure so the next Snapshot call
// retries from disk.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.state == stateFailed {
		ix.state = stateNotLoaded
		ix.loadErr = nil
	}
}

// Reset removes the persisted index and clears the active version.
func (ix *Index) Reset() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := removeSnapshot(ix.dir); err != nil {
		return err
	}
	ix.current.Store(nil)
	ix.state = stateNotLoaded
	ix.loadErr = nil
	return nil
}
