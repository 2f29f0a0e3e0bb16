package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"kbchat/internal/domain"
)

// Classifier categorizes a message into one of the four fixed categories.
// It delegates to the generation provider and degrades to a deterministic
// keyword heuristic when the provider fails or returns garbage, so chat
// never blocks on classification.
type Classifier struct {
	provider domain.GenerationProvider
	fallback domain.Category
	log      *zap.Logger
}

// NewClassifier builds a classifier. fallback is the category used when
// the provider is unavailable and no heuristic matches.
func NewClassifier(provider domain.GenerationProvider, fallback domain.Category, log *zap.Logger) *Classifier {
	if !fallback.Valid() {
		fallback = domain.CategoryFactualQuestion
	}
	return &Classifier{provider: provider, fallback: fallback, log: log}
}

// Classify never returns an error; provider failures are recovered locally.
func (c *Classifier) Classify(ctx context.Context, message string) domain.ClassificationResult {
	if c.provider != nil {
		res, err := c.provider.Classify(ctx, message)
		if err == nil && res.Category.Valid() {
			return res
		}
		if err != nil {
			c.log.Warn("classification unavailable, using heuristic", zap.Error(err))
		} else {
			c.log.Warn("classifier returned unknown category, using heuristic",
				zap.String("category", string(res.Category)))
		}
	}
	return Heuristic(message, c.fallback)
}

var greetingWords = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "greetings"}

var actionWords = []string{"write ", "create ", "generate ", "build ", "make me", "translate ", "code "}

// Heuristic is the deterministic fallback classifier: greeting keywords
// map to greeting, action verbs to out_of_scope, a question mark to
// factual_question, and everything else to the configured fallback.
func Heuristic(message string, fallback domain.Category) domain.ClassificationResult {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, w := range greetingWords {
		if lower == w || strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+"!") || strings.HasPrefix(lower, w+",") {
			return domain.ClassificationResult{Category: domain.CategoryGreeting, Confidence: 0.7}
		}
	}
	for _, w := range actionWords {
		if strings.HasPrefix(lower, w) {
			return domain.ClassificationResult{Category: domain.CategoryOutOfScope, Confidence: 0.6}
		}
	}
	if strings.Contains(lower, "?") {
		return domain.ClassificationResult{Category: domain.CategoryFactualQuestion, Confidence: 0.6}
	}
	return domain.ClassificationResult{Category: fallback, Confidence: 0.5}
}
