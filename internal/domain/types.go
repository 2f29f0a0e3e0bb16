package domain

// Document is a unit of raw extracted text supplied by an ingestion
// collaborator. Immutable once created; re-ingesting the same source
// produces a new Document that supersedes the old one at the next build.
type Document struct {
	SourceID    string `json:"source_id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

// Chunk is a windowed substring of a Document. Position preserves the
// order within the source document; Hash is derived from the normalized
// chunk text only, so identical text anywhere in the corpus shares one hash.
type Chunk struct {
	SourceID string
	Title    string
	Text     string
	Hash     string
	Position int
	Start    int
	End      int
}

// EmbeddingRecord is the metadata stored alongside one row of the vector
// matrix. Records and matrix rows are parallel arrays in the same order.
type EmbeddingRecord struct {
	ChunkHash string `json:"chunk_hash"`
	SourceID  string `json:"source_id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
}

// SearchResult is a retrieval hit: the best-scoring chunk of one source.
type SearchResult struct {
	SourceID string
	Title    string
	Text     string
	Score    float64
}

// Source identifies a grounding source attached to an answer.
type Source struct {
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
}

// Answer is the chat call surface response.
type Answer struct {
	Text       string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	Intent     string   `json:"intent,omitempty"`
}

// Category is a message classification bucket.
type Category string

const (
	CategoryGreeting        Category = "greeting"
	CategoryFactualQuestion Category = "factual_question"
	CategoryChitchat        Category = "chitchat"
	CategoryOutOfScope      Category = "out_of_scope"
)

// Valid reports whether c is one of the four fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryGreeting, CategoryFactualQuestion, CategoryChitchat, CategoryOutOfScope:
		return true
	}
	return false
}

// ClassificationResult is the per-message classifier output. Ephemeral;
// never persisted by the core.
type ClassificationResult struct {
	Category   Category
	Confidence float64
}
