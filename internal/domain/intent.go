package domain

import "time"

// ActionType selects the response-construction strategy for an intent.
type ActionType string

const (
	// ActionStatic returns one of the intent's response templates verbatim.
	ActionStatic ActionType = "static"
	// ActionRetrieval answers from the index, scoped by the intent.
	ActionRetrieval ActionType = "retrieval"
	// ActionHybrid substitutes retrieved context into a response template.
	ActionHybrid ActionType = "hybrid"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionStatic, ActionRetrieval, ActionHybrid:
		return true
	}
	return false
}

// Intent is a user- or discovery-defined conversational intent.
type Intent struct {
	ID           string     `yaml:"id" json:"id"`
	Name         string     `yaml:"name" json:"name"`
	Description  string     `yaml:"description" json:"description"`
	Patterns     []string   `yaml:"patterns" json:"patterns"`
	Examples     []string   `yaml:"examples" json:"examples"`
	ActionType   ActionType `yaml:"action_type" json:"action_type"`
	Responses    []string   `yaml:"responses" json:"responses"`
	Enabled      bool       `yaml:"enabled" json:"enabled"`
	AutoDetected bool       `yaml:"auto_detected" json:"auto_detected"`
	CreatedAt    time.Time  `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `yaml:"updated_at" json:"updated_at"`
}
