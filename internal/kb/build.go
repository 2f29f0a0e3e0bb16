package kb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kbchat/internal/domain"
	"kbchat/internal/index"
)

// BuildIndex runs the full indexing pipeline: dedupe documents by source,
// chunk, embed through the cache, construct a new index version and swap
// it in atomically. Progress events stream to progress (may be nil) and
// always end with a completed or error event. Only one build runs per
// instance; a concurrent request fails with ErrBuildInProgress.
//
// A failed build leaves the previous index and the persisted cache
// untouched.
func (k *KB) BuildIndex(ctx context.Context, docs []domain.Document, progress chan<- domain.ProgressEvent) (domain.BuildSummary, error) {
	if err := k.tryBeginBuild(); err != nil {
		return domain.BuildSummary{}, err
	}
	defer k.endBuild()

	summary, err := k.build(ctx, docs, progress)
	if err != nil {
		emit(progress, domain.ProgressEvent{Phase: domain.PhaseError, Message: err.Error()})
		return domain.BuildSummary{}, err
	}
	emit(progress, domain.ProgressEvent{
		Phase: domain.PhaseCompleted,
		Message: fmt.Sprintf("Index built successfully (%d chunks, %d new embeddings)",
			summary.TotalChunks, summary.NewEmbeddings),
		Summary: &summary,
	})
	return summary, nil
}

func (k *KB) build(ctx context.Context, docs []domain.Document, progress chan<- domain.ProgressEvent) (domain.BuildSummary, error) {
	if len(docs) == 0 {
		return domain.BuildSummary{}, domain.ErrNoDocuments
	}
	emit(progress, domain.ProgressEvent{Phase: domain.PhaseLoad,
		Message: fmt.Sprintf("Loading %d knowledge documents...", len(docs))})

	// Re-ingested sources supersede earlier versions: last one wins.
	bySource := make(map[string]int, len(docs))
	ordered := make([]domain.Document, 0, len(docs))
	superseded := 0
	for _, doc := range docs {
		if doc.SourceID == "" {
			return domain.BuildSummary{}, fmt.Errorf("%w: document without source id", domain.ErrInvalidConfiguration)
		}
		if i, ok := bySource[doc.SourceID]; ok {
			ordered[i] = doc
			superseded++
			continue
		}
		bySource[doc.SourceID] = len(ordered)
		ordered = append(ordered, doc)
	}

	var chunks []domain.Chunk
	for _, doc := range ordered {
		chunks = append(chunks, k.chunker.Chunk(doc)...)
	}
	if len(chunks) == 0 {
		return domain.BuildSummary{}, fmt.Errorf("%w: documents contain no text", domain.ErrNoDocuments)
	}
	emit(progress, domain.ProgressEvent{Phase: domain.PhaseChunk,
		Message: fmt.Sprintf("%d chunks prepared", len(chunks))})

	// Trainable providers fit on the corpus first; a changed model makes
	// previously cached vectors incomparable.
	if trainable, ok := k.embed.(domain.Trainable); ok {
		corpus := make([]string, len(chunks))
		for i, ch := range chunks {
			corpus[i] = ch.Text
		}
		changed, err := trainable.Fit(corpus)
		if err != nil {
			return domain.BuildSummary{}, &domain.ProviderError{Provider: k.embed.Name(), Op: "fit", Err: err}
		}
		if changed {
			k.log.Info("embedding model refitted, dropping cached vectors")
			if err := k.cache.Reset(); err != nil {
				return domain.BuildSummary{}, err
			}
		}
	}

	emit(progress, domain.ProgressEvent{Phase: domain.PhaseEmbed,
		Message: fmt.Sprintf("Embedding %d chunks (cache has %d entries)...", len(chunks), k.cache.Len())})
	vectors, stats, err := k.cache.EmbedBatch(ctx, k.embed, chunks, k.cfg.Retrieval.EmbedBatchSize)
	if err != nil {
		return domain.BuildSummary{}, err
	}
	emit(progress, domain.ProgressEvent{Phase: domain.PhaseEmbed,
		Message: fmt.Sprintf("%d chunks embedded (%d reused)", len(chunks), stats.Reused)})

	dim := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return domain.BuildSummary{}, fmt.Errorf("embedding provider produced no usable vectors")
	}

	records := make([]domain.EmbeddingRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = domain.EmbeddingRecord{
			ChunkHash: ch.Hash,
			SourceID:  ch.SourceID,
			Title:     ch.Title,
			Text:      ch.Text,
			Position:  ch.Position,
		}
	}
	snap := &index.Snapshot{Dim: dim, Vectors: vectors, Records: records}

	emit(progress, domain.ProgressEvent{Phase: domain.PhaseBuild,
		Message: fmt.Sprintf("Writing index (%d records, dimension %d)...", len(records), dim)})
	if err := k.index.Install(snap); err != nil {
		return domain.BuildSummary{}, err
	}
	if err := k.cache.Save(); err != nil {
		// The index swap already happened; a stale cache only costs
		// provider calls on the next build.
		k.log.Warn("embedding cache save failed", zap.Error(err))
	}

	return domain.BuildSummary{
		TotalChunks:       len(chunks),
		NewEmbeddings:     stats.New,
		ReusedEmbeddings:  stats.Reused,
		Dimension:         dim,
		TotalDocuments:    len(ordered),
		SupersededSources: superseded,
	}, nil
}

func emit(progress chan<- domain.ProgressEvent, ev domain.ProgressEvent) {
	if progress != nil {
		progress <- ev
	}
}
