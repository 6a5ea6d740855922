package memory

import (
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is the in-memory repository used for development and tests.
type Memory struct {
	document  *documentRepository
	chunk     *chunkRepository
	embedding *embeddingRepository
	session   *sessionRepository
	mastery   *masteryRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		document:  newDocumentRepository(),
		chunk:     newChunkRepository(),
		embedding: newEmbeddingRepository(),
		session:   newSessionRepository(),
		mastery:   newMasteryRepository(),
	}
}

func (m *Memory) Document() interfaces.DocumentRepository {
	return m.document
}

func (m *Memory) Chunk() interfaces.ChunkRepository {
	return m.chunk
}

func (m *Memory) Embedding() interfaces.EmbeddingRepository {
	return m.embedding
}

func (m *Memory) Session() interfaces.SessionRepository {
	return m.session
}

func (m *Memory) Mastery() interfaces.MasteryRepository {
	return m.mastery
}

func (m *Memory) Close() error {
	return nil
}
