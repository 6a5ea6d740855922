package types

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy of the core. Callers match with errors.Is; layers add
// context by wrapping with goerr.Wrap so values and stacks survive.
var (
	// ErrEmptyDocument is returned when a document has no text left
	// after normalization.
	ErrEmptyDocument = goerr.New("document is empty after normalization")

	// ErrDimensionMismatch is returned when a query vector does not
	// match the index's configured dimension.
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrEmbeddingVersionMismatch is returned when stored embeddings
	// were produced by a model version the retriever cannot resolve.
	ErrEmbeddingVersionMismatch = goerr.New("embedding model version mismatch")

	// ErrGenerationUnavailable is returned when both the online and
	// the local model failed. Not retryable within the request.
	ErrGenerationUnavailable = goerr.New("generation unavailable")

	// ErrMalformedGeneration is returned when model output still does
	// not conform to the expected schema after one regeneration.
	ErrMalformedGeneration = goerr.New("malformed generation output")

	// ErrInvalidSubmission is returned when an answer targets an item
	// that is not currently presented.
	ErrInvalidSubmission = goerr.New("submission does not match the presented item")

	// ErrSessionConflict is returned when a learner already has an
	// active session for the topic scope.
	ErrSessionConflict = goerr.New("an active session already exists for this topic")
)
