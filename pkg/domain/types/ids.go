package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// DocumentID identifies an ingested document version. Re-ingesting a
// source under a new version produces a new DocumentID; documents are
// never mutated in place.
type DocumentID string

func (id DocumentID) String() string {
	return string(id)
}

// LearnerID identifies a learner. Issued by the external account layer;
// the core treats it as opaque.
type LearnerID string

func (id LearnerID) String() string {
	return string(id)
}

// Topic is a named subset of the corpus (e.g. a chapter) used to
// restrict retrieval and quiz sessions. Empty Topic means the whole
// corpus.
type Topic string

func (t Topic) String() string {
	return string(t)
}

// SessionID is a UUID-based identifier for a quiz session
type SessionID string

// NewSessionID generates a new UUID v4 SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (id SessionID) String() string {
	return string(id)
}

// ItemID is a UUID-based identifier for a quiz item
type ItemID string

// NewItemID generates a new UUID v4 ItemID
func NewItemID() ItemID {
	return ItemID(uuid.New().String())
}

func (id ItemID) String() string {
	return string(id)
}

// ChunkRef is the stable identity of a chunk: the owning document and
// the zero-based chunk index within it.
type ChunkRef struct {
	DocumentID DocumentID
	Index      int
}

// String renders the ref with a fixed-width index so lexicographic
// ordering of refs matches (document, index) ordering.
func (r ChunkRef) String() string {
	return fmt.Sprintf("%s#%06d", r.DocumentID, r.Index)
}

// ParseChunkRef is the inverse of ChunkRef.String
func ParseChunkRef(s string) (ChunkRef, error) {
	pos := strings.LastIndex(s, "#")
	if pos <= 0 || pos == len(s)-1 {
		return ChunkRef{}, goerr.New("invalid chunk ref", goerr.V("ref", s))
	}

	index, err := strconv.Atoi(s[pos+1:])
	if err != nil || index < 0 {
		return ChunkRef{}, goerr.New("invalid chunk ref index", goerr.V("ref", s))
	}

	return ChunkRef{
		DocumentID: DocumentID(s[:pos]),
		Index:      index,
	}, nil
}
