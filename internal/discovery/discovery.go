package discovery

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"kbchat/internal/domain"
	"kbchat/internal/index"
)

// Discoverer proposes candidate intents by grouping indexed chunks at a
// looser similarity threshold than retrieval uses. Best-effort tooling:
// it never affects chat availability, and its proposals stay disabled
// until a user enables them.
type Discoverer struct {
	threshold    float64
	minGroupSize int
	maxExamples  int
	gen          domain.GenerationProvider
	log          *zap.Logger
}

// New builds a discoverer. gen is optional; with a provider configured,
// group names and examples get an LLM refinement pass, with the heuristic
// derivation as fallback.
func New(threshold float64, minGroupSize, maxExamples int, gen domain.GenerationProvider, log *zap.Logger) *Discoverer {
	if threshold <= 0 {
		threshold = 0.60
	}
	if minGroupSize < 2 {
		minGroupSize = 2
	}
	if maxExamples <= 0 {
		maxExamples = 4
	}
	return &Discoverer{threshold: threshold, minGroupSize: minGroupSize, maxExamples: maxExamples, gen: gen, log: log}
}

type group struct {
	members []int // record indices; members[0] is the seed
}

// Propose groups the snapshot's records and derives one candidate intent
// per group of at least minGroupSize chunks.
func (d *Discoverer) Propose(ctx context.Context, snap *index.Snapshot) []domain.Intent {
	var groups []*group
	for i := range snap.Records {
		placed := false
		for _, g := range groups {
			if dot32(snap.Vectors[g.members[0]], snap.Vectors[i]) >= d.threshold {
				g.members = append(g.members, i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{members: []int{i}})
		}
	}

	seen := make(map[string]struct{})
	var out []domain.Intent
	for _, g := range groups {
		if len(g.members) < d.minGroupSize {
			continue
		}
		it := d.deriveIntent(ctx, g, snap)
		if it.Name == "" {
			continue
		}
		if _, dup := seen[it.Name]; dup {
			continue
		}
		seen[it.Name] = struct{}{}
		out = append(out, it)
	}
	d.log.Info("intent discovery finished",
		zap.Int("chunks", snap.Len()),
		zap.Int("groups", len(groups)),
		zap.Int("proposed", len(out)))
	return out
}

// deriveIntent names a group from its most representative chunk: the
// member closest to the group centroid.
func (d *Discoverer) deriveIntent(ctx context.Context, g *group, snap *index.Snapshot) domain.Intent {
	centroid := make([]float64, snap.Dim)
	for _, i := range g.members {
		for j, v := range snap.Vectors[i] {
			centroid[j] += float64(v)
		}
	}
	repIdx, best := g.members[0], -1.0
	for _, i := range g.members {
		var sim float64
		for j, v := range snap.Vectors[i] {
			sim += float64(v) * centroid[j]
		}
		if sim > best {
			best = sim
			repIdx = i
		}
	}
	rep := snap.Records[repIdx]

	terms := topTerms(rep.Text, 3)
	if len(terms) == 0 {
		return domain.Intent{}
	}
	name := strings.Join(terms, "_")

	var texts []string
	var examples []string
	for _, i := range g.members {
		texts = append(texts, snap.Records[i].Text)
		if len(examples) < d.maxExamples {
			if s := leadingSentence(snap.Records[i].Text); s != "" {
				examples = append(examples, s)
			}
		}
	}
	it := domain.Intent{
		Name:         name,
		Description:  summarize(strings.Join(texts, " "), 2),
		Patterns:     terms,
		Examples:     examples,
		ActionType:   domain.ActionRetrieval,
		AutoDetected: true,
		Enabled:      false,
	}
	d.refine(ctx, &it, rep.Text)
	return it
}

const refineSystemPrompt = `You are an intent detection expert. Given a content sample from a knowledge base, propose an intent. Respond with JSON: {"name": "short_identifier", "description": "what the intent covers", "patterns": ["3-5 keywords"], "examples": ["3-5 example user questions"]}`

// refine asks the generation provider to improve the heuristic proposal.
// Any failure leaves the heuristic result untouched.
func (d *Discoverer) refine(ctx context.Context, it *domain.Intent, sample string) {
	if d.gen == nil {
		return
	}
	text, err := d.gen.Generate(ctx, domain.GenerationRequest{
		Category: domain.CategoryOutOfScope,
		Message:  refineSystemPrompt + "\n\nContent sample:\n" + sample,
	})
	if err != nil {
		d.log.Debug("intent refinement skipped", zap.Error(err))
		return
	}
	var parsed struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Patterns    []string `json:"patterns"`
		Examples    []string `json:"examples"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed.Name == "" {
		return
	}
	it.Name = sanitizeName(parsed.Name)
	if parsed.Description != "" {
		it.Description = parsed.Description
	}
	if len(parsed.Patterns) > 0 {
		it.Patterns = parsed.Patterns
	}
	if len(parsed.Examples) > 0 {
		it.Examples = parsed.Examples
	}
}

func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func dot32(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
