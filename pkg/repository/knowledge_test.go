package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/repository/firestore"
	"github.com/sahayak-lab/sahayak/pkg/repository/memory"
)

func newTestDocumentID() types.DocumentID {
	return types.DocumentID(fmt.Sprintf("doc-%d", time.Now().UnixNano()))
}

func runDocumentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put and Get round-trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		doc := &model.Document{
			ID:         newTestDocumentID(),
			SourceName: "algebra-unit-3.pdf",
			Topic:      "algebra",
			Text:       "Linear equations describe straight lines.",
			Language:   "en",
			Version:    1,
		}

		created, err := repo.Document().Put(ctx, doc)
		if err != nil {
			t.Fatalf("failed to put document: %v", err)
		}
		if created.IngestedAt.IsZero() {
			t.Error("expected non-zero IngestedAt")
		}

		retrieved, err := repo.Document().Get(ctx, doc.ID)
		if err != nil {
			t.Fatalf("failed to get document: %v", err)
		}
		if retrieved.SourceName != doc.SourceName {
			t.Errorf("expected SourceName=%s, got %s", doc.SourceName, retrieved.SourceName)
		}
		if retrieved.Topic != doc.Topic {
			t.Errorf("expected Topic=%s, got %s", doc.Topic, retrieved.Topic)
		}
		if retrieved.Text != doc.Text {
			t.Errorf("expected Text=%q, got %q", doc.Text, retrieved.Text)
		}
		if retrieved.Version != 1 {
			t.Errorf("expected Version=1, got %d", retrieved.Version)
		}
		if retrieved.Superseded {
			t.Error("expected Superseded=false")
		}
	})

	t.Run("Get returns ErrNotFound for missing document", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Document().Get(ctx, newTestDocumentID())
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListBySource returns all versions of one source", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		sourceName := fmt.Sprintf("chemistry-%d.pdf", time.Now().UnixNano())
		for v := 1; v <= 3; v++ {
			doc := &model.Document{
				ID:         types.DocumentID(fmt.Sprintf("%s-v%d", sourceName, v)),
				SourceName: sourceName,
				Topic:      "chemistry",
				Text:       fmt.Sprintf("version %d body", v),
				Version:    v,
				Superseded: v < 3,
			}
			if _, err := repo.Document().Put(ctx, doc); err != nil {
				t.Fatalf("failed to put document v%d: %v", v, err)
			}
		}

		docs, err := repo.Document().ListBySource(ctx, sourceName)
		if err != nil {
			t.Fatalf("failed to list by source: %v", err)
		}
		if len(docs) != 3 {
			t.Fatalf("expected 3 versions, got %d", len(docs))
		}
	})

	t.Run("MarkSuperseded hides a version", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		doc := &model.Document{
			ID:         newTestDocumentID(),
			SourceName: "biology.pdf",
			Topic:      "biology",
			Text:       "Cells are the basic unit of life.",
			Version:    1,
		}
		if _, err := repo.Document().Put(ctx, doc); err != nil {
			t.Fatalf("failed to put document: %v", err)
		}

		if err := repo.Document().MarkSuperseded(ctx, doc.ID); err != nil {
			t.Fatalf("failed to mark superseded: %v", err)
		}

		retrieved, err := repo.Document().Get(ctx, doc.ID)
		if err != nil {
			t.Fatalf("failed to get document: %v", err)
		}
		if !retrieved.Superseded {
			t.Error("expected Superseded=true")
		}
	})

	t.Run("Delete removes the document", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		doc := &model.Document{
			ID:         newTestDocumentID(),
			SourceName: "physics.pdf",
			Topic:      "physics",
			Text:       "Force equals mass times acceleration.",
			Version:    1,
		}
		if _, err := repo.Document().Put(ctx, doc); err != nil {
			t.Fatalf("failed to put document: %v", err)
		}

		if err := repo.Document().Delete(ctx, doc.ID); err != nil {
			t.Fatalf("failed to delete document: %v", err)
		}

		if _, err := repo.Document().Get(ctx, doc.ID); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func runChunkRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	makeChunks := func(docID types.DocumentID, n int) []*model.Chunk {
		chunks := make([]*model.Chunk, 0, n)
		for i := 0; i < n; i++ {
			chunks = append(chunks, &model.Chunk{
				DocumentID: docID,
				Index:      i,
				Topic:      "algebra",
				Text:       fmt.Sprintf("chunk %d text", i),
				TokenCount: 12,
				Hash:       fmt.Sprintf("hash-%d", i),
			})
		}
		return chunks
	}

	t.Run("PutBatch and ListByDocument preserve index order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		if err := repo.Chunk().PutBatch(ctx, makeChunks(docID, 4)); err != nil {
			t.Fatalf("failed to put chunks: %v", err)
		}

		chunks, err := repo.Chunk().ListByDocument(ctx, docID)
		if err != nil {
			t.Fatalf("failed to list chunks: %v", err)
		}
		if len(chunks) != 4 {
			t.Fatalf("expected 4 chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if c.Index != i {
				t.Errorf("expected chunk index %d at position %d, got %d", i, i, c.Index)
			}
			if c.CreatedAt.IsZero() {
				t.Errorf("expected non-zero CreatedAt for chunk %d", i)
			}
		}
	})

	t.Run("Get retrieves a chunk by ref", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		if err := repo.Chunk().PutBatch(ctx, makeChunks(docID, 2)); err != nil {
			t.Fatalf("failed to put chunks: %v", err)
		}

		chunk, err := repo.Chunk().Get(ctx, types.ChunkRef{DocumentID: docID, Index: 1})
		if err != nil {
			t.Fatalf("failed to get chunk: %v", err)
		}
		if chunk.Text != "chunk 1 text" {
			t.Errorf("expected chunk 1 text, got %q", chunk.Text)
		}
		if chunk.Hash != "hash-1" {
			t.Errorf("expected hash-1, got %s", chunk.Hash)
		}
	})

	t.Run("Get returns ErrNotFound for missing chunk", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Chunk().Get(ctx, types.ChunkRef{DocumentID: newTestDocumentID(), Index: 0})
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteByDocument removes all chunks of one document only", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		target := newTestDocumentID()
		other := types.DocumentID(string(target) + "-other")
		if err := repo.Chunk().PutBatch(ctx, makeChunks(target, 3)); err != nil {
			t.Fatalf("failed to put target chunks: %v", err)
		}
		if err := repo.Chunk().PutBatch(ctx, makeChunks(other, 2)); err != nil {
			t.Fatalf("failed to put other chunks: %v", err)
		}

		if err := repo.Chunk().DeleteByDocument(ctx, target); err != nil {
			t.Fatalf("failed to delete by document: %v", err)
		}

		remaining, err := repo.Chunk().ListByDocument(ctx, target)
		if err != nil {
			t.Fatalf("failed to list target chunks: %v", err)
		}
		if len(remaining) != 0 {
			t.Errorf("expected 0 target chunks, got %d", len(remaining))
		}

		kept, err := repo.Chunk().ListByDocument(ctx, other)
		if err != nil {
			t.Fatalf("failed to list other chunks: %v", err)
		}
		if len(kept) != 2 {
			t.Errorf("expected 2 other chunks, got %d", len(kept))
		}
	})

	t.Run("CountByTopic groups counts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		chunks := makeChunks(docID, 3)
		chunks[2].Topic = "geometry"
		if err := repo.Chunk().PutBatch(ctx, chunks); err != nil {
			t.Fatalf("failed to put chunks: %v", err)
		}

		counts, err := repo.Chunk().CountByTopic(ctx)
		if err != nil {
			t.Fatalf("failed to count by topic: %v", err)
		}
		if counts["algebra"] < 2 {
			t.Errorf("expected at least 2 algebra chunks, got %d", counts["algebra"])
		}
		if counts["geometry"] < 1 {
			t.Errorf("expected at least 1 geometry chunk, got %d", counts["geometry"])
		}
	})
}

func runEmbeddingRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	putRecord := func(t *testing.T, repo interfaces.Repository, docID types.DocumentID, index int, topic types.Topic, vector []float32) {
		t.Helper()
		rec := &model.EmbeddingRecord{
			ChunkRef:     types.ChunkRef{DocumentID: docID, Index: index},
			Topic:        topic,
			Hash:         fmt.Sprintf("hash-%d", index),
			ModelVersion: "test-embed-v1",
			Vector:       vector,
		}
		if _, err := repo.Embedding().Put(context.Background(), rec); err != nil {
			t.Fatalf("failed to put embedding record: %v", err)
		}
	}

	t.Run("Put and Get round-trip preserves the vector", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		putRecord(t, repo, docID, 0, "algebra", []float32{0.1, 0.2, 0.3})

		rec, err := repo.Embedding().Get(ctx, types.ChunkRef{DocumentID: docID, Index: 0})
		if err != nil {
			t.Fatalf("failed to get embedding record: %v", err)
		}
		if len(rec.Vector) != 3 {
			t.Fatalf("expected vector length 3, got %d", len(rec.Vector))
		}
		if rec.Vector[0] != 0.1 || rec.Vector[1] != 0.2 || rec.Vector[2] != 0.3 {
			t.Errorf("expected vector [0.1 0.2 0.3], got %v", rec.Vector)
		}
		if rec.ModelVersion != "test-embed-v1" {
			t.Errorf("expected ModelVersion=test-embed-v1, got %s", rec.ModelVersion)
		}
		if rec.CreatedAt.IsZero() {
			t.Error("expected non-zero CreatedAt")
		}
	})

	t.Run("FindNearest returns closest records first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		putRecord(t, repo, docID, 0, "algebra", []float32{1, 0, 0})
		putRecord(t, repo, docID, 1, "algebra", []float32{0, 1, 0})
		putRecord(t, repo, docID, 2, "algebra", []float32{0.9, 0.1, 0})

		records, err := repo.Embedding().FindNearest(ctx, "algebra", []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatalf("failed to find nearest: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].ChunkRef.Index != 0 {
			t.Errorf("expected closest record to be chunk 0, got %d", records[0].ChunkRef.Index)
		}
		if records[1].ChunkRef.Index != 2 {
			t.Errorf("expected second record to be chunk 2, got %d", records[1].ChunkRef.Index)
		}
	})

	t.Run("FindNearest respects topic scope", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		putRecord(t, repo, docID, 0, "algebra", []float32{1, 0, 0})
		putRecord(t, repo, docID, 1, "geometry", []float32{1, 0, 0})

		records, err := repo.Embedding().FindNearest(ctx, "geometry", []float32{1, 0, 0}, 10)
		if err != nil {
			t.Fatalf("failed to find nearest: %v", err)
		}
		for _, rec := range records {
			if rec.Topic != "geometry" {
				t.Errorf("expected only geometry records, got topic %s", rec.Topic)
			}
		}
	})

	t.Run("DeleteByDocument cascades all records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		docID := newTestDocumentID()
		putRecord(t, repo, docID, 0, "algebra", []float32{1, 0, 0})
		putRecord(t, repo, docID, 1, "algebra", []float32{0, 1, 0})

		if err := repo.Embedding().DeleteByDocument(ctx, docID); err != nil {
			t.Fatalf("failed to delete by document: %v", err)
		}

		_, err := repo.Embedding().Get(ctx, types.ChunkRef{DocumentID: docID, Index: 0})
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound after cascade, got %v", err)
		}
	})
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID)
	if err != nil {
		t.Fatalf("failed to create firestore repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close firestore repository: %v", err)
		}
	})
	return repo
}

func newMemoryRepository(t *testing.T) interfaces.Repository {
	t.Helper()
	return memory.New()
}

func TestMemoryDocumentRepository(t *testing.T) {
	runDocumentRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreDocumentRepository(t *testing.T) {
	runDocumentRepositoryTest(t, newFirestoreRepository)
}

func TestMemoryChunkRepository(t *testing.T) {
	runChunkRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreChunkRepository(t *testing.T) {
	runChunkRepositoryTest(t, newFirestoreRepository)
}

func TestMemoryEmbeddingRepository(t *testing.T) {
	runEmbeddingRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreEmbeddingRepository(t *testing.T) {
	runEmbeddingRepositoryTest(t, newFirestoreRepository)
}
