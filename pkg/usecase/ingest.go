package usecase

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/service/chunker"
	"github.com/sahayak-lab/sahayak/pkg/service/index"
	"github.com/sahayak-lab/sahayak/pkg/utils/async"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel embedding calls per ingest.
const embedConcurrency = 4

// IngestUseCase runs the document-to-knowledge-base pipeline: split,
// diff against the previous version, embed what changed, then swap
// retrieval visibility to the new version.
type IngestUseCase struct {
	repo    interfaces.Repository
	chunker *chunker.Chunker
	index   *index.Index
	sources *async.KeyedMutex
}

func NewIngestUseCase(repo interfaces.Repository, chk *chunker.Chunker, idx *index.Index) *IngestUseCase {
	return &IngestUseCase{
		repo:    repo,
		chunker: chk,
		index:   idx,
		sources: async.NewKeyedMutex(),
	}
}

// IngestInput describes one document delivered by the extraction layer.
type IngestInput struct {
	SourceName string
	Topic      types.Topic
	Text       string
	Language   string
}

// IngestResult reports what one ingest run did.
type IngestResult struct {
	Document         *model.Document
	ChunkCount       int
	ReusedEmbeddings int
	NewEmbeddings    int
}

// Ingest stores a new document version. Re-ingestion of a known source
// supersedes the previous version; chunks whose content hash is
// unchanged reuse their embedding records instead of re-embedding.
// Concurrent ingests of the same source are serialized.
func (uc *IngestUseCase) Ingest(ctx context.Context, input *IngestInput) (*IngestResult, error) {
	if input.SourceName == "" {
		return nil, goerr.New("source name is required")
	}

	uc.sources.Lock(input.SourceName)
	defer uc.sources.Unlock(input.SourceName)

	logger := logging.From(ctx)

	priors, version, err := uc.priorVersions(ctx, input.SourceName)
	if err != nil {
		return nil, err
	}
	var prior *model.Document
	if len(priors) > 0 {
		prior = priors[0]
	}

	doc := &model.Document{
		ID:         types.DocumentID(uuid.New().String()),
		SourceName: input.SourceName,
		Topic:      input.Topic,
		Text:       input.Text,
		Language:   input.Language,
		Version:    version + 1,
	}

	chunks, err := uc.chunker.Split(doc)
	if err != nil {
		return nil, err
	}

	stored, err := uc.repo.Document().Put(ctx, doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store document", goerr.V("source", input.SourceName))
	}

	if err := uc.repo.Chunk().PutBatch(ctx, chunks); err != nil {
		return nil, goerr.Wrap(err, "failed to store chunks", goerr.V("document_id", stored.ID))
	}

	reused, fresh, err := uc.embed(ctx, prior, chunks)
	if err != nil {
		return nil, err
	}

	for _, p := range priors {
		if err := uc.supersede(ctx, p.ID); err != nil {
			return nil, err
		}
		logger.Info("superseded previous document version",
			"source", input.SourceName, "previous", p.ID, "current", stored.ID)
	}

	logger.Info("document ingested",
		"source", input.SourceName,
		"document_id", stored.ID,
		"version", stored.Version,
		"chunks", len(chunks),
		"reused_embeddings", reused,
		"new_embeddings", fresh)

	return &IngestResult{
		Document:         stored,
		ChunkCount:       len(chunks),
		ReusedEmbeddings: reused,
		NewEmbeddings:    fresh,
	}, nil
}

// priorVersions returns every version of a source still visible to
// retrieval, newest first, and the highest version number seen. More
// than one visible version means an earlier ingest failed between
// storing the document and superseding its predecessor; the next
// successful ingest supersedes all of them.
func (uc *IngestUseCase) priorVersions(ctx context.Context, sourceName string) ([]*model.Document, int, error) {
	docs, err := uc.repo.Document().ListBySource(ctx, sourceName)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to list document versions", goerr.V("source", sourceName))
	}

	var visible []*model.Document
	highest := 0
	for _, d := range docs {
		if d.Version > highest {
			highest = d.Version
		}
		if !d.Superseded {
			visible = append(visible, d)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].Version > visible[j].Version
	})

	return visible, highest, nil
}

// embed fills embedding records for the new chunks. Chunks matching a
// prior chunk's content hash copy the existing record to the new ref;
// the rest embed in parallel.
func (uc *IngestUseCase) embed(ctx context.Context, prior *model.Document, chunks []*model.Chunk) (reused, fresh int, err error) {
	priorByHash := make(map[string]types.ChunkRef)
	if prior != nil {
		priorChunks, err := uc.repo.Chunk().ListByDocument(ctx, prior.ID)
		if err != nil {
			return 0, 0, goerr.Wrap(err, "failed to list prior chunks", goerr.V("document_id", prior.ID))
		}
		for _, c := range priorChunks {
			priorByHash[c.Hash] = c.Ref()
		}
	}

	var toEmbed []*model.Chunk
	for _, chunk := range chunks {
		priorRef, ok := priorByHash[chunk.Hash]
		if !ok {
			toEmbed = append(toEmbed, chunk)
			continue
		}

		rec, err := uc.repo.Embedding().Get(ctx, priorRef)
		if err != nil || rec.ModelVersion != uc.index.Version() {
			toEmbed = append(toEmbed, chunk)
			continue
		}

		rec.ChunkRef = chunk.Ref()
		rec.Topic = chunk.Topic
		if _, err := uc.repo.Embedding().Put(ctx, rec); err != nil {
			return 0, 0, goerr.Wrap(err, "failed to copy embedding record", goerr.V("ref", chunk.Ref().String()))
		}
		reused++
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(embedConcurrency)
	for _, chunk := range toEmbed {
		eg.Go(func() error {
			_, err := uc.index.Upsert(ectx, chunk)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, 0, goerr.Wrap(err, "failed to embed chunks")
	}

	return reused, len(toEmbed), nil
}

// supersede hides a prior version from retrieval and cascades its
// chunks and embedding records.
func (uc *IngestUseCase) supersede(ctx context.Context, id types.DocumentID) error {
	if err := uc.repo.Document().MarkSuperseded(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to mark document superseded", goerr.V("document_id", id))
	}
	if err := uc.repo.Embedding().DeleteByDocument(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to cascade embedding records", goerr.V("document_id", id))
	}
	if err := uc.repo.Chunk().DeleteByDocument(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to cascade chunks", goerr.V("document_id", id))
	}
	return nil
}

// Delete removes a document with its chunks and embedding records.
func (uc *IngestUseCase) Delete(ctx context.Context, id types.DocumentID) error {
	doc, err := uc.repo.Document().Get(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to get document", goerr.V("document_id", id))
	}

	uc.sources.Lock(doc.SourceName)
	defer uc.sources.Unlock(doc.SourceName)

	if err := uc.repo.Embedding().DeleteByDocument(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete embedding records", goerr.V("document_id", id))
	}
	if err := uc.repo.Chunk().DeleteByDocument(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete chunks", goerr.V("document_id", id))
	}
	if err := uc.repo.Document().Delete(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("document_id", id))
	}

	return nil
}

// List returns all stored document versions.
func (uc *IngestUseCase) List(ctx context.Context) ([]*model.Document, error) {
	docs, err := uc.repo.Document().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}
	return docs, nil
}

// CorpusStats summarizes the knowledge base.
type CorpusStats struct {
	Documents       int
	ActiveDocuments int
	Chunks          int
	ChunksByTopic   map[types.Topic]int
	Embeddings      int
}

// Stats reports document, chunk and embedding counts.
func (uc *IngestUseCase) Stats(ctx context.Context) (*CorpusStats, error) {
	docs, err := uc.repo.Document().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}

	byTopic, err := uc.repo.Chunk().CountByTopic(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count chunks")
	}

	embeddings, err := uc.repo.Embedding().Count(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count embedding records")
	}

	stats := &CorpusStats{
		Documents:     len(docs),
		ChunksByTopic: byTopic,
		Embeddings:    embeddings,
	}
	for _, d := range docs {
		if !d.Superseded {
			stats.ActiveDocuments++
		}
	}
	for _, n := range byTopic {
		stats.Chunks += n
	}

	return stats, nil
}