package retrieval

import (
	"strings"

	"kbchat/internal/domain"
)

const (
	snippetLimit = 600
	maxSources   = 2
)

// GroundedAnswer assembles a formatted answer from retrieval results:
// up to maxSources best-scoring sources, each rendered as title, snippet
// and source line. Empty when nothing cleared the threshold.
func GroundedAnswer(res Result) domain.Answer {
	var parts []string
	var sources []domain.Source
	maxScore := 0.0
	for _, r := range res.Results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
		if len(parts) >= maxSources {
			continue
		}
		title := r.Title
		if title == "" {
			title = r.SourceID
		}
		parts = append(parts, title+"\n"+snippet(r.Text)+"\n\nSource: "+r.SourceID)
		sources = append(sources, domain.Source{SourceID: r.SourceID, Score: r.Score})
	}
	if len(parts) == 0 {
		return domain.Answer{Sources: []domain.Source{}}
	}
	return domain.Answer{
		Text:       strings.Join(parts, "\n\n---\n\n"),
		Sources:    sources,
		Confidence: maxScore,
	}
}

// ContextText concatenates result texts for template substitution.
func ContextText(res Result) string {
	texts := make([]string, 0, len(res.Results))
	for _, r := range res.Results {
		texts = append(texts, snippet(r.Text))
	}
	return strings.Join(texts, "\n\n")
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= snippetLimit {
		return text
	}
	return string(runes[:snippetLimit]) + "…"
}
