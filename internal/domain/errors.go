package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration rejects bad chunking/retrieval parameters
	// before any work starts.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotIndexed means no build has ever succeeded. Not a hard failure
	// for chat; the router declines to ground answers instead.
	ErrNotIndexed = errors.New("knowledge base not indexed")

	// ErrCorruptIndex means the persisted metadata and vector matrix
	// disagree. Fatal for that load; a rebuild is required.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrBuildInProgress means another build is already running for this
	// knowledge-base instance.
	ErrBuildInProgress = errors.New("index build already in progress")

	// ErrNoDocuments means a build was requested with an empty corpus.
	ErrNoDocuments = errors.New("no documents to index")
)

// ProviderError wraps a failure from an external embedding or generation
// provider. Transient by assumption; callers retried before surfacing it.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
