package interfaces

import "github.com/m-mizutani/goerr/v2"

// ErrNotFound is returned by all repositories when a record does not
// exist. Backends wrap it with goerr so callers can match with
// errors.Is regardless of the storage engine.
var ErrNotFound = goerr.New("record not found")

// Repository defines the interface for data persistence. The knowledge
// base (documents, chunks, embeddings) and the per-learner state
// (sessions, mastery) share one store object with an explicit
// lifecycle; there is no module-level singleton.
type Repository interface {
	Document() DocumentRepository
	Chunk() ChunkRepository
	Embedding() EmbeddingRepository
	Session() SessionRepository
	Mastery() MasteryRepository

	Close() error
}
