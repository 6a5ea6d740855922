package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/usecase"
	"github.com/sahayak-lab/sahayak/pkg/utils/errutil"
)

type ingestRequest struct {
	SourceName string `json:"source_name"`
	Topic      string `json:"topic"`
	Text       string `json:"text"`
	Language   string `json:"language"`
}

type ingestResponse struct {
	DocumentID       string `json:"document_id"`
	SourceName       string `json:"source_name"`
	Topic            string `json:"topic"`
	Version          int    `json:"version"`
	Chunks           int    `json:"chunks"`
	NewEmbeddings    int    `json:"new_embeddings"`
	ReusedEmbeddings int    `json:"reused_embeddings"`
}

func (s *Server) ingestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}
	if req.SourceName == "" || req.Topic == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("source_name and topic are required"), http.StatusBadRequest)
		return
	}

	res, err := s.uc.Ingest.Ingest(ctx, &usecase.IngestInput{
		SourceName: req.SourceName,
		Topic:      types.Topic(req.Topic),
		Text:       req.Text,
		Language:   req.Language,
	})
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, ingestResponse{
		DocumentID:       string(res.Document.ID),
		SourceName:       res.Document.SourceName,
		Topic:            string(res.Document.Topic),
		Version:          res.Document.Version,
		Chunks:           res.ChunkCount,
		NewEmbeddings:    res.NewEmbeddings,
		ReusedEmbeddings: res.ReusedEmbeddings,
	})
}

type documentResponse struct {
	ID         string    `json:"id"`
	SourceName string    `json:"source_name"`
	Topic      string    `json:"topic"`
	Language   string    `json:"language,omitempty"`
	Version    int       `json:"version"`
	Superseded bool      `json:"superseded"`
	IngestedAt time.Time `json:"ingested_at"`
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docs, err := s.uc.Ingest.List(ctx)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	resp := struct {
		Documents []documentResponse `json:"documents"`
	}{Documents: make([]documentResponse, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentResponse{
			ID:         string(d.ID),
			SourceName: d.SourceName,
			Topic:      string(d.Topic),
			Language:   d.Language,
			Version:    d.Version,
			Superseded: d.Superseded,
			IngestedAt: d.IngestedAt,
		})
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := types.DocumentID(chi.URLParam(r, "documentID"))
	if err := s.uc.Ingest.Delete(ctx, id); err != nil {
		handleError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) corpusStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.uc.Ingest.Stats(ctx)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	byTopic := make(map[string]int, len(stats.ChunksByTopic))
	for topic, n := range stats.ChunksByTopic {
		byTopic[string(topic)] = n
	}

	respondJSON(ctx, w, http.StatusOK, struct {
		Documents       int            `json:"documents"`
		ActiveDocuments int            `json:"active_documents"`
		Chunks          int            `json:"chunks"`
		ChunksByTopic   map[string]int `json:"chunks_by_topic"`
		Embeddings      int            `json:"embeddings"`
	}{
		Documents:       stats.Documents,
		ActiveDocuments: stats.ActiveDocuments,
		Chunks:          stats.Chunks,
		ChunksByTopic:   byTopic,
		Embeddings:      stats.Embeddings,
	})
}

type askRequest struct {
	Query string `json:"query"`
	Topic string `json:"topic"`
	K     int    `json:"k"`
}

type askResponse struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations"`
	Sources    []string `json:"sources"`
	Grounded   bool     `json:"grounded"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("query is required"), http.StatusBadRequest)
		return
	}

	answer, err := s.uc.Ask.Ask(ctx, req.Query, types.Topic(req.Topic), req.K)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, askResponse{
		Text:       answer.Text,
		Confidence: answer.Confidence,
		Citations:  chunkRefStrings(answer.Citations),
		Sources:    answer.Sources,
		Grounded:   answer.Grounded,
	})
}

type startSessionRequest struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// sessionResponse never includes answer keys; items are issued one at
// a time through the next endpoint.
type sessionResponse struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	Position  int       `json:"position"`
	Items     int       `json:"items"`
	Answered  int       `json:"answered"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionResponse(session *model.QuizSession) sessionResponse {
	return sessionResponse{
		ID:        string(session.ID),
		Topic:     string(session.Topic),
		Status:    session.Status.String(),
		Position:  session.Position,
		Items:     len(session.Items),
		Answered:  len(session.Responses),
		CreatedAt: session.CreatedAt,
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, err := learnerID(r)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("topic is required"), http.StatusBadRequest)
		return
	}

	session, err := s.uc.Quiz.StartSession(ctx, learner, types.Topic(req.Topic), req.Count)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, err := learnerID(r)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	session, err := s.uc.Quiz.Get(ctx, learner, types.SessionID(chi.URLParam(r, "sessionID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, toSessionResponse(session))
}

// itemResponse is the learner-facing view of a quiz item. The answer
// key and explanation are withheld until the item is answered.
type itemResponse struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
	Topic      string   `json:"topic"`
	Difficulty string   `json:"difficulty"`
}

func (s *Server) nextItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, err := learnerID(r)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	item, err := s.uc.Quiz.NextItem(ctx, learner, types.SessionID(chi.URLParam(r, "sessionID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, itemResponse{
		ID:         string(item.ID),
		Question:   item.Question,
		Options:    item.Options,
		Topic:      string(item.Topic),
		Difficulty: item.Difficulty.String(),
	})
}

type submitRequest struct {
	ItemID string `json:"item_id"`
	Answer string `json:"answer"`
}

type summaryResponse struct {
	SessionID   string              `json:"session_id"`
	Topic       string              `json:"topic"`
	Total       int                 `json:"total"`
	Correct     int                 `json:"correct"`
	Score       float64             `json:"score"`
	Breakdown   []breakdownResponse `json:"breakdown"`
	Citations   []string            `json:"citations"`
	CompletedAt time.Time           `json:"completed_at"`
}

type breakdownResponse struct {
	Topic   string `json:"topic"`
	Total   int    `json:"total"`
	Correct int    `json:"correct"`
}

type submitResponse struct {
	Correct       bool             `json:"correct"`
	CorrectAnswer string           `json:"correct_answer"`
	Explanation   string           `json:"explanation,omitempty"`
	Completed     bool             `json:"completed"`
	Summary       *summaryResponse `json:"summary,omitempty"`
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, err := learnerID(r)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	res, err := s.uc.Quiz.SubmitAnswer(ctx, learner,
		types.SessionID(chi.URLParam(r, "sessionID")), types.ItemID(req.ItemID), req.Answer)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	resp := submitResponse{
		Correct:       res.Correct,
		CorrectAnswer: res.CorrectAnswer,
		Explanation:   res.Explanation,
		Completed:     res.Completed,
	}
	if res.Summary != nil {
		breakdown := make([]breakdownResponse, 0, len(res.Summary.Breakdown))
		for _, row := range res.Summary.Breakdown {
			breakdown = append(breakdown, breakdownResponse{
				Topic:   string(row.Topic),
				Total:   row.Total,
				Correct: row.Correct,
			})
		}
		resp.Summary = &summaryResponse{
			SessionID:   string(res.Summary.SessionID),
			Topic:       string(res.Summary.Topic),
			Total:       res.Summary.Total,
			Correct:     res.Summary.Correct,
			Score:       res.Summary.Score,
			Breakdown:   breakdown,
			Citations:   chunkRefStrings(res.Summary.Citations),
			CompletedAt: res.Summary.CompletedAt,
		}
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) abandonSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, err := learnerID(r)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	if err := s.uc.Quiz.Abandon(ctx, learner, types.SessionID(chi.URLParam(r, "sessionID"))); err != nil {
		handleError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type masteryResponse struct {
	LearnerID       string                 `json:"learner_id"`
	Overall         float64                `json:"overall"`
	Attempts        int                    `json:"attempts"`
	Topics          []topicMasteryResponse `json:"topics"`
	Recommendations []string               `json:"recommendations"`
}

type topicMasteryResponse struct {
	Topic    string  `json:"topic"`
	Estimate float64 `json:"estimate"`
	Attempts int     `json:"attempts"`
}

func (s *Server) masteryReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := s.uc.Mastery.Report(ctx, types.LearnerID(chi.URLParam(r, "learnerID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	topics := make([]topicMasteryResponse, 0, len(report.Topics))
	for _, t := range report.Topics {
		topics = append(topics, topicMasteryResponse{
			Topic:    string(t.Topic),
			Estimate: t.Estimate,
			Attempts: t.Attempts,
		})
	}

	respondJSON(ctx, w, http.StatusOK, masteryResponse{
		LearnerID:       string(report.LearnerID),
		Overall:         report.Overall,
		Attempts:        report.Attempts,
		Topics:          topics,
		Recommendations: report.Recommendations,
	})
}

func chunkRefStrings(refs []types.ChunkRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.String())
	}
	return out
}
