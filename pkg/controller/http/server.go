package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/usecase"
	"github.com/sahayak-lab/sahayak/pkg/utils/errutil"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
	"github.com/sahayak-lab/sahayak/pkg/utils/safe"
)

// learnerHeader carries the caller's learner identity. Authentication
// is out of scope; the header is trusted as-is.
const learnerHeader = "X-Learner-ID"

type Server struct {
	router *chi.Mux
	uc     *usecase.UseCases
}

func New(uc *usecase.UseCases) (*Server, error) {
	if uc == nil {
		return nil, goerr.New("usecases are required")
	}

	r := chi.NewRouter()
	s := &Server{
		router: r,
		uc:     uc,
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.ingestDocument)
			r.Get("/", s.listDocuments)
			r.Delete("/{documentID}", s.deleteDocument)
		})
		r.Get("/stats", s.corpusStats)

		r.Post("/ask", s.ask)

		r.Route("/quiz/sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Post("/next", s.nextItem)
				r.Post("/answers", s.submitAnswer)
				r.Post("/abandon", s.abandonSession)
			})
		})

		r.Get("/learners/{learnerID}/mastery", s.masteryReport)
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(err, "invalid request body")
	}
	return nil
}

// handleError maps the domain error taxonomy to HTTP status codes.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, types.ErrEmptyDocument),
		errors.Is(err, types.ErrDimensionMismatch),
		errors.Is(err, types.ErrInvalidSubmission):
		status = http.StatusBadRequest
	case errors.Is(err, interfaces.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrSessionConflict):
		status = http.StatusConflict
	case errors.Is(err, types.ErrEmbeddingVersionMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrMalformedGeneration):
		status = http.StatusBadGateway
	case errors.Is(err, types.ErrGenerationUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	errutil.HandleHTTP(ctx, w, err, status)
}

func learnerID(r *http.Request) (types.LearnerID, error) {
	id := r.Header.Get(learnerHeader)
	if id == "" {
		return "", goerr.New("missing " + learnerHeader + " header")
	}
	return types.LearnerID(id), nil
}
