package kb

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"kbchat/internal/chunker"
	"kbchat/internal/config"
	"kbchat/internal/discovery"
	"kbchat/internal/domain"
	"kbchat/internal/embedcache"
	"kbchat/internal/index"
	"kbchat/internal/intent"
	"kbchat/internal/retrieval"
	"kbchat/internal/router"
)

// KB is one knowledge-base instance: its own data directory holding the
// embedding cache, the persisted index and the intent store. Tenants are
// isolated by giving each its own KB with a distinct directory.
type KB struct {
	cfg     *config.Config
	dir     string
	log     *zap.Logger
	embed   domain.EmbeddingProvider
	chunker domain.Chunker
	cache   *embedcache.Store
	index   *index.Index
	engine  *retrieval.Engine
	intents *intent.Store
	router  *router.Router
	disc    *discovery.Discoverer

	buildMu sync.Mutex
	// building guards against concurrent rebuilds without blocking;
	// a second request fails fast with ErrBuildInProgress.
	building bool
}

// Stats describes the knowledge-base state for status surfaces.
type Stats struct {
	TotalChunks         int     `json:"total_chunks"`
	Indexed             bool    `json:"indexed"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	TopK                int     `json:"top_k"`
}

// Open assembles a knowledge base from validated configuration. gen may
// be nil: chat then runs entirely on pattern matching, heuristics and
// grounding.
func Open(cfg *config.Config, dir string, embed domain.EmbeddingProvider, gen domain.GenerationProvider, log *zap.Logger) (*KB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	cache, err := embedcache.Open(dir, log)
	if err != nil {
		return nil, err
	}
	ix := index.Open(dir, log)
	engine, err := retrieval.New(embed, ix, cfg.Retrieval.SimilarityThreshold, cfg.Retrieval.TopK)
	if err != nil {
		return nil, err
	}
	intents, err := intent.OpenStore(dir)
	if err != nil {
		return nil, err
	}
	classifier := intent.NewClassifier(gen, cfg.Classifier.FallbackCategory, log)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rt := router.New(intents, classifier, engine, gen, rng, log)
	disc := discovery.New(cfg.Discovery.SimilarityThreshold, cfg.Discovery.MinGroupSize, cfg.Discovery.MaxExamples, gen, log)
	return &KB{
		cfg:     cfg,
		dir:     dir,
		log:     log,
		embed:   embed,
		chunker: ch,
		cache:   cache,
		index:   ix,
		engine:  engine,
		intents: intents,
		router:  rt,
		disc:    disc,
	}, nil
}

// Chat handles one message on the chat call surface.
func (k *KB) Chat(ctx context.Context, message string) (domain.Answer, error) {
	return k.router.Respond(ctx, message)
}

// Search exposes the retrieval engine directly.
func (k *KB) Search(ctx context.Context, query string) (retrieval.Result, error) {
	return k.engine.Search(ctx, query)
}

// Intents exposes the intent store for CRUD surfaces.
func (k *KB) Intents() *intent.Store { return k.intents }

// Stats reports the current knowledge-base state. A missing index is
// reported as not indexed, never as an error.
func (k *KB) Stats() Stats {
	s := Stats{
		SimilarityThreshold: k.cfg.Retrieval.SimilarityThreshold,
		TopK:                k.cfg.Retrieval.TopK,
	}
	snap, err := k.index.Snapshot()
	if err != nil {
		return s
	}
	s.Indexed = true
	s.TotalChunks = snap.Len()
	return s
}

// DiscoverIntents proposes candidate intents from the indexed corpus and
// stores the ones whose names are not taken yet. Best-effort: an
// unindexed corpus yields no proposals and no error is fatal for chat.
func (k *KB) DiscoverIntents(ctx context.Context) ([]domain.Intent, error) {
	snap, err := k.index.Snapshot()
	if err != nil {
		return nil, err
	}
	proposals := k.disc.Propose(ctx, snap)
	var stored []domain.Intent
	for _, p := range proposals {
		created, err := k.intents.Create(p)
		if err != nil {
			k.log.Debug("skipping discovered intent", zap.String("name", p.Name), zap.Error(err))
			continue
		}
		stored = append(stored, created)
	}
	return stored, nil
}

// Reset drops the index, the embedding cache and nothing else. An
// in-flight build is allowed to finish; its result lands in the fresh
// directory state and can simply be rebuilt over.
func (k *KB) Reset() error {
	if err := k.index.Reset(); err != nil {
		return err
	}
	return k.cache.Reset()
}

func (k *KB) tryBeginBuild() error {
	k.buildMu.Lock()
	defer k.buildMu.Unlock()
	if k.building {
		return domain.ErrBuildInProgress
	}
	k.building = true
	return nil
}

func (k *KB) endBuild() {
	k.buildMu.Lock()
	k.building = false
	k.buildMu.Unlock()
}

func (k *KB) String() string {
	return fmt.Sprintf("kb(%s)", k.dir)
}
