package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"kbchat/internal/domain"
	"kbchat/internal/index"
)

// Engine answers queries by exact cosine search over the current index
// snapshot: embed the query, score every record, apply the similarity
// threshold, keep the best chunk per source, return at most topK.
type Engine struct {
	provider  domain.EmbeddingProvider
	index     *index.Index
	threshold float64
	topK      int
}

// Result is the retrieval output. NotIndexed is set instead of an error
// when no build has ever succeeded, so callers can present a
// "knowledge base not ready" state.
type Result struct {
	Results    []domain.SearchResult
	NotIndexed bool
}

// New validates the search parameters and returns an engine.
func New(provider domain.EmbeddingProvider, ix *index.Index, threshold float64, topK int) (*Engine, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold must be in [0,1], got %g", domain.ErrInvalidConfiguration, threshold)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be > 0, got %d", domain.ErrInvalidConfiguration, topK)
	}
	return &Engine{provider: provider, index: ix, threshold: threshold, topK: topK}, nil
}

// Search runs the engine with its configured threshold and topK.
func (e *Engine) Search(ctx context.Context, query string) (Result, error) {
	return e.SearchWith(ctx, query, e.topK, e.threshold)
}

// SearchWith runs one query with explicit parameters. Guarantees: at most
// topK results, scores non-increasing, no two results share a source, and
// raising the threshold never grows the result set.
func (e *Engine) SearchWith(ctx context.Context, query string, topK int, threshold float64) (Result, error) {
	snap, err := e.index.Snapshot()
	if err != nil {
		if errors.Is(err, domain.ErrNotIndexed) {
			return Result{NotIndexed: true}, nil
		}
		return Result{}, err
	}

	vecs, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, &domain.ProviderError{Provider: e.provider.Name(), Op: "embed query", Err: err}
	}
	if len(vecs) != 1 {
		return Result{}, &domain.ProviderError{Provider: e.provider.Name(), Op: "embed query",
			Err: fmt.Errorf("got %d vectors for one query", len(vecs))}
	}
	qv := normalized(vecs[0])

	var scores []float64
	if isZero(qv) {
		// A query with no in-vocabulary tokens embeds to the zero vector
		// under local providers; fall back to lexical overlap scoring.
		scores = lexicalScores(query, snap.Records)
	} else {
		scores = make([]float64, len(snap.Vectors))
		for i, row := range snap.Vectors {
			scores[i] = dot(row, qv)
		}
	}

	best := make(map[string]int, len(scores)) // source -> best record idx
	for i, score := range scores {
		if score < threshold {
			continue
		}
		src := snap.Records[i].SourceID
		if j, ok := best[src]; !ok || score > scores[j] {
			best[src] = i
		}
	}

	results := make([]domain.SearchResult, 0, len(best))
	for _, i := range best {
		rec := snap.Records[i]
		results = append(results, domain.SearchResult{
			SourceID: rec.SourceID,
			Title:    rec.Title,
			Text:     rec.Text,
			Score:    scores[i],
		})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].SourceID < results[b].SourceID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return Result{Results: results}, nil
}

func dot(a []float32, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * b[i]
	}
	return sum
}

func normalized(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = float64(x)
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i := range out {
		out[i] *= inv
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
