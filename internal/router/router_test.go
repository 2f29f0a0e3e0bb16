package router

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbchat/internal/domain"
	"kbchat/internal/intent"
	"kbchat/internal/retrieval"
)

type stubSearcher struct {
	res       retrieval.Result
	err       error
	lastQuery string
}

func (s *stubSearcher) Search(_ context.Context, query string) (retrieval.Result, error) {
	s.lastQuery = query
	return s.res, s.err
}

type stubGen struct {
	text string
	err  error
}

func (s stubGen) Classify(context.Context, string) (domain.ClassificationResult, error) {
	return domain.ClassificationResult{}, errors.New("not used")
}

func (s stubGen) Generate(context.Context, domain.GenerationRequest) (string, error) {
	return s.text, s.err
}

func newStore(t *testing.T, intents ...domain.Intent) *intent.Store {
	t.Helper()
	s, err := intent.OpenStore(t.TempDir())
	require.NoError(t, err)
	for _, it := range intents {
		_, err := s.Create(it)
		require.NoError(t, err)
	}
	return s
}

func newRouter(t *testing.T, store *intent.Store, search Searcher, gen domain.GenerationProvider) *Router {
	t.Helper()
	classifier := intent.NewClassifier(nil, domain.CategoryChitchat, zap.NewNop())
	return New(store, classifier, search, gen, rand.New(rand.NewSource(1)), zap.NewNop())
}

func hit(sourceID, text string, score float64) domain.SearchResult {
	return domain.SearchResult{SourceID: sourceID, Title: sourceID, Text: text, Score: score}
}

func TestRespondEmptyMessage(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{}, nil)

	ans, err := r.Respond(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, EmptyMessage, ans.Text)
	assert.Empty(t, ans.Sources)
}

func TestRespondStaticIntent(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:       "hours",
		Patterns:   []string{"hours"},
		ActionType: domain.ActionStatic,
		Responses:  []string{"We are open 9 to 5."},
		Enabled:    true,
	})
	search := &stubSearcher{}
	r := newRouter(t, store, search, nil)

	ans, err := r.Respond(context.Background(), "what are your hours")
	require.NoError(t, err)
	assert.Equal(t, "We are open 9 to 5.", ans.Text)
	assert.Equal(t, "hours", ans.Intent)
	assert.InDelta(t, 1.0, ans.Confidence, 1e-9)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, search.lastQuery)
}

func TestRespondStaticIntentWithoutResponses(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:       "hours",
		Patterns:   []string{"hours"},
		ActionType: domain.ActionStatic,
		Enabled:    true,
	})
	r := newRouter(t, store, &stubSearcher{}, nil)

	ans, err := r.Respond(context.Background(), "hours please")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "hours")
	assert.Contains(t, ans.Text, "don't have a configured response")
}

func TestRespondRetrievalIntent(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:     "pricing",
		Patterns: []string{"price"},
		Enabled:  true,
	})
	search := &stubSearcher{res: retrieval.Result{Results: []domain.SearchResult{
		hit("a", "plans start at ten dollars", 0.9),
	}}}
	r := newRouter(t, store, search, nil)

	ans, err := r.Respond(context.Background(), "how much is the price")
	require.NoError(t, err)
	assert.Equal(t, "pricing", ans.Intent)
	assert.Contains(t, ans.Text, "plans start at ten dollars")
	assert.Contains(t, ans.Text, "Source: a")
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "a", ans.Sources[0].SourceID)
	assert.Equal(t, "how much is the price", search.lastQuery)
}

func TestRespondHybridSubstitutesTemplate(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:       "shipping",
		Patterns:   []string{"shipping"},
		ActionType: domain.ActionHybrid,
		Responses:  []string{"Here is what I know: {context} (from {sources_count} sources)"},
		Enabled:    true,
	})
	search := &stubSearcher{res: retrieval.Result{Results: []domain.SearchResult{
		hit("a", "orders ship in two days", 0.85),
	}}}
	r := newRouter(t, store, search, nil)

	ans, err := r.Respond(context.Background(), "tell me about shipping")
	require.NoError(t, err)
	assert.Equal(t, "Here is what I know: orders ship in two days (from 1 sources)", ans.Text)
	assert.NotContains(t, ans.Text, "{context}")
	assert.NotContains(t, ans.Text, "{sources_count}")
	require.Len(t, ans.Sources, 1)
	assert.InDelta(t, 0.85, ans.Confidence, 1e-9)
}

func TestRespondHybridEmptyRetrievalFallsBackToStatic(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:       "shipping",
		Patterns:   []string{"shipping"},
		ActionType: domain.ActionHybrid,
		Responses:  []string{"Shipping info is on its way.", "Details: {context}"},
		Enabled:    true,
	})
	r := newRouter(t, store, &stubSearcher{}, nil)

	ans, err := r.Respond(context.Background(), "tell me about shipping")
	require.NoError(t, err)
	assert.Equal(t, "Shipping info is on its way.", ans.Text)
	assert.NotContains(t, ans.Text, "{context}")
	assert.Empty(t, ans.Sources)
}

func TestRespondHybridEmptyRetrievalOnlyTemplates(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:       "shipping",
		Patterns:   []string{"shipping"},
		ActionType: domain.ActionHybrid,
		Responses:  []string{"Details: {context}"},
		Enabled:    true,
	})
	r := newRouter(t, store, &stubSearcher{}, nil)

	ans, err := r.Respond(context.Background(), "tell me about shipping")
	require.NoError(t, err)
	assert.Equal(t, NoGroundedAnswer, ans.Text)
}

func TestRespondHybridWithoutResponsesUsesRetrieval(t *testing.T) {
	store := newStore(t, domain.Intent{
		Name:       "shipping",
		Patterns:   []string{"shipping"},
		ActionType: domain.ActionHybrid,
		Enabled:    true,
	})
	search := &stubSearcher{res: retrieval.Result{Results: []domain.SearchResult{
		hit("a", "orders ship in two days", 0.85),
	}}}
	r := newRouter(t, store, search, nil)

	ans, err := r.Respond(context.Background(), "tell me about shipping")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Source: a")
	assert.Equal(t, "shipping", ans.Intent)
}

func TestRespondFactualQuestionGrounded(t *testing.T) {
	search := &stubSearcher{res: retrieval.Result{Results: []domain.SearchResult{
		hit("a", "the answer body", 0.77),
	}}}
	r := newRouter(t, newStore(t), search, nil)

	ans, err := r.Respond(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "the answer body")
	require.Len(t, ans.Sources, 1)
	assert.InDelta(t, 0.77, ans.Confidence, 1e-9)
	assert.Empty(t, ans.Intent)
}

func TestRespondFactualQuestionNoResults(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{}, nil)

	ans, err := r.Respond(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, NoGroundedAnswer, ans.Text)
	require.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, ans.Confidence)
}

func TestRespondFactualQuestionNotIndexed(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{res: retrieval.Result{NotIndexed: true}}, nil)

	ans, err := r.Respond(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, NoGroundedAnswer, ans.Text)
}

func TestRespondSearchErrorPropagates(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{err: errors.New("corrupt")}, nil)

	_, err := r.Respond(context.Background(), "what is the answer?")
	require.Error(t, err)
}

func TestRespondGreetingWithoutProvider(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{}, nil)

	ans, err := r.Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, SafeGreeting, ans.Text)
	assert.Empty(t, ans.Sources)
}

func TestRespondGreetingGenerated(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{}, stubGen{text: "Hi! Ask me about the docs."})

	ans, err := r.Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi! Ask me about the docs.", ans.Text)
}

func TestRespondGenerationFailureUsesSafeResponse(t *testing.T) {
	r := newRouter(t, newStore(t), &stubSearcher{}, stubGen{err: errors.New("down")})

	ans, err := r.Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, SafeGreeting, ans.Text)

	// Chitchat (no heuristic signal) degrades to the scope reminder.
	ans, err = r.Respond(context.Background(), "just passing by")
	require.NoError(t, err)
	assert.Equal(t, SafeFallback, ans.Text)
}
