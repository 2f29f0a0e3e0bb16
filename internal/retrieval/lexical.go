package retrieval

import (
	"math"
	"regexp"
	"strings"

	"kbchat/internal/domain"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// lexicalScores ranks records by token-set overlap with the query using
// the Ochiai coefficient |A∩B| / sqrt(|A||B|). Scores live in [0,1] like
// cosine similarity, so the threshold applies unchanged.
func lexicalScores(query string, records []domain.EmbeddingRecord) []float64 {
	qset := tokenSet(query)
	scores := make([]float64, len(records))
	for i, rec := range records {
		scores[i] = ochiai(qset, rec.Text)
	}
	return scores
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func ochiai(qset map[string]struct{}, text string) float64 {
	toks := wordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(toks))
	inter := 0
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(seen))))
}
