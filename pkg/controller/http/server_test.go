package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	controller "github.com/sahayak-lab/sahayak/pkg/controller/http"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/repository/memory"
	"github.com/sahayak-lab/sahayak/pkg/service/adaptive"
	"github.com/sahayak-lab/sahayak/pkg/service/chunker"
	"github.com/sahayak-lab/sahayak/pkg/service/generator"
	"github.com/sahayak-lab/sahayak/pkg/service/index"
	"github.com/sahayak-lab/sahayak/pkg/service/retriever"
	"github.com/sahayak-lab/sahayak/pkg/usecase"
)

// mockSession is a mock gollem Session for testing
type mockSession struct{}

func (s *mockSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return &gollem.Response{Texts: []string{quizJSON(2, "easy")}}, nil
}

func (s *mockSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	ch := make(chan *gollem.Response, 1)
	ch <- &gollem.Response{Texts: []string{"The slope is the coefficient of x."}}
	close(ch)
	return ch, nil
}

func (s *mockSession) History() (*gollem.History, error)   { return nil, nil }
func (s *mockSession) AppendHistory(*gollem.History) error { return nil }
func (s *mockSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct{}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &mockSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	vecs := make([][]float64, len(input))
	for i := range input {
		vec := make([]float64, dimension)
		vec[0] = 1
		vecs[i] = vec
	}
	return vecs, nil
}

func quizJSON(n int, difficulty string) string {
	var sb strings.Builder
	sb.WriteString(`{"questions": [`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{
			"question": "Question %d: what is the slope of y = 2x + %d?",
			"options": ["1", "2", "3", "4"],
			"answer": "2",
			"explanation": "The coefficient of x is the slope.",
			"difficulty": %q
		}`, i+1, i, difficulty)
	}
	sb.WriteString("]}")
	return sb.String()
}

func newTestServer(t *testing.T) *controller.Server {
	t.Helper()

	repo := memory.New()
	llm := &mockLLMClient{}

	cfg := config.Default()
	cfg.Embedding.Dimension = 3

	chk, err := chunker.New(cfg.Chunk)
	gt.NoError(t, err).Required()
	idx, err := index.New(llm, repo, cfg.Embedding, "embed-v1")
	gt.NoError(t, err).Required()
	ret, err := retriever.New(idx, cfg.Retrieval)
	gt.NoError(t, err).Required()
	gen, err := generator.New(llm, generator.WithDocumentRepository(repo.Document()))
	gt.NoError(t, err).Required()
	eng, err := adaptive.New(repo.Mastery(), cfg.Mastery)
	gt.NoError(t, err).Required()

	ucs := usecase.New(repo, chk, idx, ret, gen, eng, usecase.WithEngineConfig(cfg))

	srv, err := controller.New(ucs)
	gt.NoError(t, err).Required()
	return srv
}

func doJSON(t *testing.T, srv *controller.Server, method, path, learner string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body)).Required()
	}
	req := httptest.NewRequest(method, path, &buf)
	if learner != "" {
		req.Header.Set("X-Learner-ID", learner)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func ingestDocument(t *testing.T, srv *controller.Server) string {
	t.Helper()

	text := strings.Repeat("The slope of a line measures its steepness and direction of change. ", 6)
	rec := doJSON(t, srv, http.MethodPost, "/api/documents", "", map[string]any{
		"source_name": "algebra-101.pdf",
		"topic":       "algebra",
		"text":        text,
		"language":    "en",
	})
	gt.Value(t, rec.Code).Equal(http.StatusCreated)

	var resp struct {
		DocumentID string `json:"document_id"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	return resp.DocumentID
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
}

func TestIngestAndAsk(t *testing.T) {
	srv := newTestServer(t)
	ingestDocument(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/ask", "", map[string]any{
		"query": "what is a slope?",
		"topic": "algebra",
	})
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var resp struct {
		Text      string   `json:"text"`
		Grounded  bool     `json:"grounded"`
		Citations []string `json:"citations"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	gt.Bool(t, resp.Grounded).True()
	gt.Number(t, len(resp.Citations)).Greater(0)
}

func TestIngestValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/documents", "", map[string]any{
		"topic": "algebra",
	})
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)

	// Whitespace-only text fails chunking with a client error.
	rec = doJSON(t, srv, http.MethodPost, "/api/documents", "", map[string]any{
		"source_name": "empty.pdf",
		"topic":       "algebra",
		"text":        "   \n\n  ",
	})
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t)
	id := ingestDocument(t, srv)

	rec := doJSON(t, srv, http.MethodDelete, "/api/documents/"+id, "", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNoContent)

	rec = doJSON(t, srv, http.MethodDelete, "/api/documents/"+id, "", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}

func TestQuizLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ingestDocument(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/quiz/sessions", "learner-1", map[string]any{
		"topic": "algebra",
		"count": 2,
	})
	gt.Value(t, rec.Code).Equal(http.StatusCreated)

	var session struct {
		ID    string `json:"id"`
		Items int    `json:"items"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session)).Required()
	gt.Value(t, session.Items).Equal(2)

	// A second start for the same learner and topic conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/api/quiz/sessions", "learner-1", map[string]any{
		"topic": "algebra",
	})
	gt.Value(t, rec.Code).Equal(http.StatusConflict)

	base := "/api/quiz/sessions/" + session.ID
	for i := 0; i < 2; i++ {
		rec = doJSON(t, srv, http.MethodPost, base+"/next", "learner-1", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var item struct {
			ID     string `json:"id"`
			Answer string `json:"answer"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item)).Required()
		// The answer key never leaks to the learner.
		gt.Value(t, item.Answer).Equal("")

		rec = doJSON(t, srv, http.MethodPost, base+"/answers", "learner-1", map[string]any{
			"item_id": item.ID,
			"answer":  "2",
		})
		gt.Value(t, rec.Code).Equal(http.StatusOK)
	}

	var result struct {
		Correct   bool `json:"correct"`
		Completed bool `json:"completed"`
		Summary   *struct {
			Score float64 `json:"score"`
		} `json:"summary"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result)).Required()
	gt.Bool(t, result.Correct).True()
	gt.Bool(t, result.Completed).True()
	gt.Value(t, result.Summary).NotNil()

	rec = doJSON(t, srv, http.MethodGet, "/api/learners/learner-1/mastery", "", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var report struct {
		Attempts int `json:"attempts"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report)).Required()
	gt.Value(t, report.Attempts).Equal(2)
}

func TestSubmitWrongItemReturnsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	ingestDocument(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/quiz/sessions", "learner-1", map[string]any{
		"topic": "algebra",
		"count": 2,
	})
	gt.Value(t, rec.Code).Equal(http.StatusCreated)

	var session struct {
		ID string `json:"id"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session)).Required()

	base := "/api/quiz/sessions/" + session.ID
	rec = doJSON(t, srv, http.MethodPost, base+"/next", "learner-1", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	rec = doJSON(t, srv, http.MethodPost, base+"/answers", "learner-1", map[string]any{
		"item_id": "no-such-item",
		"answer":  "2",
	})
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}

func TestQuizRequiresLearnerHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/quiz/sessions", "", map[string]any{
		"topic": "algebra",
	})
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}

func TestSessionHiddenFromOtherLearners(t *testing.T) {
	srv := newTestServer(t)
	ingestDocument(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/quiz/sessions", "learner-1", map[string]any{
		"topic": "algebra",
		"count": 2,
	})
	gt.Value(t, rec.Code).Equal(http.StatusCreated)

	var session struct {
		ID string `json:"id"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session)).Required()

	rec = doJSON(t, srv, http.MethodGet, "/api/quiz/sessions/"+session.ID, "learner-2", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}
