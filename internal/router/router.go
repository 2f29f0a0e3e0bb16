package router

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"kbchat/internal/domain"
	"kbchat/internal/intent"
	"kbchat/internal/retrieval"
)

// Fixed responses used when grounding or generation is unavailable. The
// chat path degrades to these instead of surfacing errors.
const (
	NoGroundedAnswer = "I only answer using information from the indexed knowledge base. I couldn't find anything relevant for your question."
	EmptyMessage     = "Please ask a question."
	SafeGreeting     = "Hello! I'm here to answer questions based only on the knowledge available to me. I don't make up information. What would you like to know?"
	SafeFallback     = "I can only answer questions based on the indexed content. Please ask me something about the knowledge base!"
)

// Searcher is the retrieval-facing port of the router.
type Searcher interface {
	Search(ctx context.Context, query string) (retrieval.Result, error)
}

// Router maps an incoming message to a response: a matched intent's
// action, a grounded answer for factual questions, or free-form
// generation for greetings and chit-chat.
type Router struct {
	intents    *intent.Store
	classifier *intent.Classifier
	engine     Searcher
	gen        domain.GenerationProvider
	rng        *rand.Rand
	log        *zap.Logger
}

// New assembles a router. gen may be nil; every generation path has a
// fixed safe response.
func New(intents *intent.Store, classifier *intent.Classifier, engine Searcher, gen domain.GenerationProvider, rng *rand.Rand, log *zap.Logger) *Router {
	return &Router{intents: intents, classifier: classifier, engine: engine, gen: gen, rng: rng, log: log}
}

// Respond handles one chat message end to end. Errors are returned only
// for retrieval infrastructure failures (e.g. a corrupt index); provider
// failures degrade to safe answers.
func (r *Router) Respond(ctx context.Context, message string) (domain.Answer, error) {
	if strings.TrimSpace(message) == "" {
		return domain.Answer{Text: EmptyMessage, Sources: []domain.Source{}}, nil
	}

	if matched := r.intents.Match(message); matched != nil {
		r.log.Debug("matched custom intent", zap.String("intent", matched.Name))
		return r.execute(ctx, matched, message)
	}

	res := r.classifier.Classify(ctx, message)
	r.log.Debug("classified message",
		zap.String("category", string(res.Category)),
		zap.Float64("confidence", res.Confidence))

	switch res.Category {
	case domain.CategoryFactualQuestion:
		return r.grounded(ctx, message, "")
	case domain.CategoryGreeting:
		return r.generated(ctx, res.Category, message, SafeGreeting), nil
	case domain.CategoryChitchat, domain.CategoryOutOfScope:
		return r.generated(ctx, res.Category, message, SafeFallback), nil
	default:
		return r.grounded(ctx, message, "")
	}
}

// execute dispatches on the intent's action type. Unknown types fall back
// to retrieval, matching how unconfigured intents behave.
func (r *Router) execute(ctx context.Context, it *domain.Intent, message string) (domain.Answer, error) {
	switch it.ActionType {
	case domain.ActionStatic:
		return r.static(it), nil
	case domain.ActionRetrieval:
		return r.grounded(ctx, message, it.Name)
	case domain.ActionHybrid:
		return r.hybrid(ctx, it, message)
	default:
		return r.grounded(ctx, message, it.Name)
	}
}

// static returns one response template verbatim: uniformly random among
// several, deterministically the only one otherwise.
func (r *Router) static(it *domain.Intent) domain.Answer {
	if len(it.Responses) == 0 {
		return domain.Answer{
			Text:       fmt.Sprintf("I understand you're asking about %s, but I don't have a configured response yet.", it.Name),
			Sources:    []domain.Source{},
			Confidence: 0.8,
			Intent:     it.Name,
		}
	}
	text := it.Responses[0]
	if len(it.Responses) > 1 {
		text = it.Responses[r.rng.Intn(len(it.Responses))]
	}
	return domain.Answer{Text: text, Sources: []domain.Source{}, Confidence: 1.0, Intent: it.Name}
}

// grounded answers from the index. Empty retrieval yields the fixed
// no-grounded-information answer with empty sources and zero confidence.
func (r *Router) grounded(ctx context.Context, query, intentName string) (domain.Answer, error) {
	res, err := r.engine.Search(ctx, query)
	if err != nil {
		return domain.Answer{}, err
	}
	ans := retrieval.GroundedAnswer(res)
	if ans.Text == "" {
		ans = domain.Answer{Text: NoGroundedAnswer, Sources: []domain.Source{}}
	}
	ans.Intent = intentName
	return ans, nil
}

// hybrid substitutes retrieved context into a response template. When
// retrieval yields nothing it falls back to the static behavior rather
// than emitting a template with an unfilled placeholder.
func (r *Router) hybrid(ctx context.Context, it *domain.Intent, query string) (domain.Answer, error) {
	if len(it.Responses) == 0 {
		return r.grounded(ctx, query, it.Name)
	}
	res, err := r.engine.Search(ctx, query)
	if err != nil {
		return domain.Answer{}, err
	}
	contextText := retrieval.ContextText(res)
	if contextText == "" {
		return r.staticFallback(it), nil
	}
	grounded := retrieval.GroundedAnswer(res)
	template := it.Responses[0]
	if len(it.Responses) > 1 {
		template = it.Responses[r.rng.Intn(len(it.Responses))]
	}
	text := strings.ReplaceAll(template, "{context}", contextText)
	text = strings.ReplaceAll(text, "{sources_count}", strconv.Itoa(len(grounded.Sources)))
	return domain.Answer{
		Text:       text,
		Sources:    grounded.Sources,
		Confidence: grounded.Confidence,
		Intent:     it.Name,
	}, nil
}

// staticFallback is the hybrid path with empty retrieval: answer with a
// template that has no placeholder, never one with an unfilled {context}.
func (r *Router) staticFallback(it *domain.Intent) domain.Answer {
	var plain []string
	for _, resp := range it.Responses {
		if !strings.Contains(resp, "{context}") {
			plain = append(plain, resp)
		}
	}
	if len(plain) == 0 {
		return domain.Answer{Text: NoGroundedAnswer, Sources: []domain.Source{}, Intent: it.Name}
	}
	text := plain[0]
	if len(plain) > 1 {
		text = plain[r.rng.Intn(len(plain))]
	}
	return domain.Answer{Text: text, Sources: []domain.Source{}, Confidence: 1.0, Intent: it.Name}
}

// generated asks the generation provider for a free-form response,
// degrading to the given safe answer on failure.
func (r *Router) generated(ctx context.Context, category domain.Category, message, safe string) domain.Answer {
	if r.gen == nil {
		return domain.Answer{Text: safe, Sources: []domain.Source{}}
	}
	text, err := r.gen.Generate(ctx, domain.GenerationRequest{Category: category, Message: message})
	if err != nil || strings.TrimSpace(text) == "" {
		r.log.Warn("generation unavailable, using safe response", zap.Error(err))
		return domain.Answer{Text: safe, Sources: []domain.Source{}}
	}
	return domain.Answer{Text: text, Sources: []domain.Source{}}
}
