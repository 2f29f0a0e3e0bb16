package domain

// Build phases reported on the indexing progress stream.
const (
	PhaseLoad      = "load"
	PhaseChunk     = "chunk"
	PhaseEmbed     = "embed"
	PhaseBuild     = "build"
	PhaseCompleted = "completed"
	PhaseError     = "error"
)

// BuildSummary is the terminal payload of a successful indexing run.
type BuildSummary struct {
	TotalChunks       int `json:"total_chunks"`
	NewEmbeddings     int `json:"new_embeddings"`
	ReusedEmbeddings  int `json:"reused_embeddings"`
	Dimension         int `json:"dimension"`
	TotalDocuments    int `json:"total_documents"`
	SupersededSources int `json:"superseded_sources"`
}

// ProgressEvent is one entry on the indexing progress stream. The stream
// ends with PhaseCompleted (Summary set) or PhaseError.
type ProgressEvent struct {
	Phase   string        `json:"phase"`
	Message string        `json:"message"`
	Summary *BuildSummary `json:"summary,omitempty"`
}
