package tfidf

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const modelFile = "tfidf.json"

// Provider is a local TF-IDF embedding provider: no network, fully
// deterministic. The fitted vocabulary and IDF values persist next to the
// index so query vectors from later processes stay comparable with the
// indexed chunk vectors.
type Provider struct {
	mu           sync.RWMutex
	dir          string
	vocabulary   map[string]int
	idf          []float64
	modelHash    string
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

type modelFileFormat struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
	Hash  string    `json:"hash"`
}

// Open returns a provider for dir, loading a previously fitted model if
// one is persisted there.
func Open(dir string) (*Provider, error) {
	p := &Provider{
		dir:          dir,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
	data, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read tfidf model: %w", err)
	}
	var f modelFileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode tfidf model: %w", err)
	}
	if len(f.Terms) != len(f.IDF) {
		return nil, errors.New("tfidf model terms and idf length mismatch")
	}
	p.vocabulary = make(map[string]int, len(f.Terms))
	for i, term := range f.Terms {
		p.vocabulary[term] = i
	}
	p.idf = f.IDF
	p.modelHash = f.Hash
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "tfidf" }

// Fit builds the vocabulary and smoothed IDF values from the corpus and
// persists them. It reports whether the fitted model differs from the
// previous one; a changed model invalidates cached vectors.
func (p *Provider) Fit(corpus []string) (bool, error) {
	if len(corpus) == 0 {
		return false, errors.New("empty corpus for tfidf fit")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range p.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return false, errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	hash := modelHash(terms, idf)

	p.mu.Lock()
	defer p.mu.Unlock()
	if hash == p.modelHash {
		return false, nil
	}
	p.vocabulary = make(map[string]int, len(terms))
	for i, term := range terms {
		p.vocabulary[term] = i
	}
	p.idf = idf
	p.modelHash = hash
	if err := p.saveLocked(terms); err != nil {
		return false, err
	}
	return true, nil
}

// Embed computes L2-normalized TF-IDF vectors for each text. Texts with
// no in-vocabulary tokens embed to the zero vector.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.idf) == 0 {
		return nil, errors.New("tfidf provider not fitted")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *Provider) embedOne(text string) []float32 {
	vec := make([]float64, len(p.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range p.tokenize(text) {
		if idx, ok := p.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	out := make([]float32, len(vec))
	if total == 0 {
		return out
	}
	norm := 0.0
	for idx, count := range tf {
		v := float64(count) / float64(total) * p.idf[idx]
		vec[idx] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			out[i] = float32(vec[i] / norm)
		}
	}
	return out
}

func (p *Provider) tokenize(text string) []string {
	raw := p.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := p.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (p *Provider) saveLocked(terms []string) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(modelFileFormat{Terms: terms, IDF: p.idf, Hash: p.modelHash})
	if err != nil {
		return err
	}
	path := filepath.Join(p.dir, modelFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func modelHash(terms []string, idf []float64) string {
	h := sha1.New()
	for i, t := range terms {
		fmt.Fprintf(h, "%s=%.12f;", t, idf[i])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
