package embedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"kbchat/internal/domain"
)

const cacheFile = "cache.json"

// Store is a content-addressed embedding cache: chunk hash -> L2-normalized
// vector. It is the only component that talks to the embedding provider
// during indexing, so reuse tallies are observable per run.
type Store struct {
	mu      sync.Mutex
	dir     string
	log     *zap.Logger
	dim     int
	vectors map[string][]float32
}

// Stats are the per-run reuse tallies. New + Reused equals the number of
// chunks passed to EmbedBatch.
type Stats struct {
	New    int
	Reused int
}

type cacheFileFormat struct {
	Dimension int                  `json:"dimension"`
	Vectors   map[string][]float32 `json:"vectors"`
}

// Open loads the cache for a knowledge-base directory, starting empty when
// no cache file exists yet.
func Open(dir string, log *zap.Logger) (*Store, error) {
	s := &Store{dir: dir, log: log, vectors: make(map[string][]float32)}
	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read embedding cache: %w", err)
	}
	var f cacheFileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode embedding cache: %w", err)
	}
	if f.Vectors != nil {
		s.vectors = f.Vectors
		s.dim = f.Dimension
	}
	log.Debug("embedding cache loaded", zap.Int("entries", len(s.vectors)), zap.Int("dimension", s.dim))
	return s, nil
}

// Len returns the number of cached vectors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vectors)
}

// EmbedBatch returns one vector per chunk, in chunk order. Chunks whose
// hash is already cached (or repeats within the batch) are served without
// a provider call; only first-seen hashes are embedded, in batches of
// batchSize. A provider failure discards everything computed in this run
// and leaves the persisted cache untouched.
func (s *Store) EmbedBatch(ctx context.Context, provider domain.EmbeddingProvider, chunks []domain.Chunk, batchSize int) ([][]float32, Stats, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	pending := make([]string, 0)          // unique hashes needing a provider call
	pendingText := make([]string, 0)      // parallel texts
	seen := make(map[string]struct{}, 16) // hashes first seen in this batch
	for _, ch := range chunks {
		if _, ok := s.vectors[ch.Hash]; ok {
			stats.Reused++
			continue
		}
		if _, ok := seen[ch.Hash]; ok {
			stats.Reused++
			continue
		}
		seen[ch.Hash] = struct{}{}
		stats.New++
		pending = append(pending, ch.Hash)
		pendingText = append(pendingText, ch.Text)
	}

	fresh := make(map[string][]float32, len(pending))
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		vecs, err := provider.Embed(ctx, pendingText[start:end])
		if err != nil {
			return nil, Stats{}, &domain.ProviderError{Provider: provider.Name(), Op: "embed batch", Err: err}
		}
		if len(vecs) != end-start {
			return nil, Stats{}, &domain.ProviderError{Provider: provider.Name(), Op: "embed batch",
				Err: fmt.Errorf("got %d vectors for %d texts", len(vecs), end-start)}
		}
		for i, v := range vecs {
			normalize(v)
			fresh[pending[start+i]] = v
		}
		s.log.Debug("embedded batch",
			zap.Int("batch", start/batchSize+1),
			zap.Int("total_batches", (len(pending)+batchSize-1)/batchSize))
	}

	// Commit only after every batch succeeded and all dimensions agree.
	dim := s.dim
	for _, v := range fresh {
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, Stats{}, fmt.Errorf("%w: provider returned dimension %d, cache has %d",
				domain.ErrCorruptIndex, len(v), dim)
		}
	}
	s.dim = dim
	for hash, v := range fresh {
		s.vectors[hash] = v
	}

	out := make([][]float32, len(chunks))
	for i, ch := range chunks {
		v, ok := s.vectors[ch.Hash]
		if !ok {
			return nil, Stats{}, fmt.Errorf("embedding missing for chunk %s", ch.Hash)
		}
		out[i] = v
	}
	return out, stats, nil
}

// Save persists the cache atomically (temp file + rename).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(cacheFileFormat{Dimension: s.dim, Vectors: s.vectors})
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, cacheFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Reset drops all cached vectors, in memory and on disk. Used on corpus
// reset and when a trainable provider refits to a changed vocabulary.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = make(map[string][]float32)
	s.dim = 0
	err := os.Remove(filepath.Join(s.dir, cacheFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// normalize scales v to unit L2 norm in place so that a dot product
// equals cosine similarity. Zero vectors are left as-is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
