package generator

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

//go:embed prompt/answer_system.md
var answerSystemPromptTmpl string

var answerSystemPrompt = template.Must(template.New("answer_system").Parse(answerSystemPromptTmpl))

// InsufficientMaterialAnswer is returned when retrieval found nothing
// to ground an answer on. No model call is made in that case.
const InsufficientMaterialAnswer = "I could not find anything about this in the provided material. " +
	"Try rephrasing the question or ingesting documents that cover this topic."

// confidenceFloor bounds the reported answer confidence from below so
// a grounded answer never reads as zero-confidence.
const confidenceFloor = 0.3

const defaultOnlineTimeout = 30 * time.Second

// Generator routes grounded generation between an online model and a
// local fallback. The online client is tried first under a timeout;
// unavailability (timeout, rate limit, network) downgrades to the
// local client with a logged warning.
type Generator struct {
	online        gollem.LLMClient
	local         gollem.LLMClient
	docs          interfaces.DocumentRepository
	onlineTimeout time.Duration
}

type Option func(*Generator)

// WithLocalClient registers the local fallback model.
func WithLocalClient(llm gollem.LLMClient) Option {
	return func(g *Generator) {
		g.local = llm
	}
}

// WithOnlineTimeout bounds each online generation attempt.
func WithOnlineTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.onlineTimeout = d
	}
}

// WithDocumentRepository enables source name resolution on answers.
func WithDocumentRepository(docs interfaces.DocumentRepository) Option {
	return func(g *Generator) {
		g.docs = docs
	}
}

// New builds a Generator. online may be nil when only a local model is
// configured; at least one client is required.
func New(online gollem.LLMClient, opts ...Option) (*Generator, error) {
	g := &Generator{
		online:        online,
		onlineTimeout: defaultOnlineTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.online == nil && g.local == nil {
		return nil, goerr.New("at least one LLM client is required")
	}

	return g, nil
}

// Answer produces a grounded answer from retrieved passages. An empty
// retrieval result returns the canned insufficient-material answer
// without touching any model.
func (g *Generator) Answer(ctx context.Context, query string, result *model.RetrievalResult) (*model.Answer, error) {
	if result.Empty() {
		return &model.Answer{
			Text:     InsufficientMaterialAnswer,
			Grounded: false,
		}, nil
	}

	systemPrompt, err := renderTemplate(answerSystemPrompt, nil)
	if err != nil {
		return nil, err
	}
	userPrompt := buildAnswerUserPrompt(query, result)

	text, err := g.generate(ctx, func(ctx context.Context, llm gollem.LLMClient, structured bool) (string, error) {
		return g.streamText(ctx, llm, structured, systemPrompt, userPrompt)
	})
	if err != nil {
		return nil, err
	}

	answer := &model.Answer{
		Text:       strings.TrimSpace(text),
		Confidence: confidence(result),
		Grounded:   true,
	}
	for _, hit := range result.Hits {
		answer.Citations = append(answer.Citations, hit.ChunkRef)
	}
	answer.Sources = g.resolveSources(ctx, result)

	return answer, nil
}

// streamText runs one streamed generation on the given client and
// collects the segments. Structured clients get the system prompt via
// session options; the local client gets it inlined.
func (g *Generator) streamText(ctx context.Context, llm gollem.LLMClient, structured bool, systemPrompt, userPrompt string) (string, error) {
	var session gollem.Session
	var err error
	var input gollem.Input

	if structured {
		session, err = llm.NewSession(ctx, gollem.WithSessionSystemPrompt(systemPrompt))
		input = gollem.Text(userPrompt)
	} else {
		session, err = llm.NewSession(ctx)
		input = gollem.Text(systemPrompt + "\n\n" + userPrompt)
	}
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	stream, err := session.GenerateStream(ctx, input)
	if err != nil {
		return "", goerr.Wrap(err, "failed to start generation stream")
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", goerr.Wrap(ctx.Err(), "generation cancelled")
		case resp, ok := <-stream:
			if !ok {
				if sb.Len() == 0 {
					return "", goerr.New("generation stream produced no output")
				}
				return sb.String(), nil
			}
			for _, t := range resp.Texts {
				sb.WriteString(t)
			}
		}
	}
}

// generateFn runs one attempt on one client. structured reports
// whether the client honors gollem session options (the online path).
type generateFn func(ctx context.Context, llm gollem.LLMClient, structured bool) (string, error)

// generate applies the routing policy: online under a timeout first,
// then the local fallback for unavailability-class failures.
func (g *Generator) generate(ctx context.Context, fn generateFn) (string, error) {
	logger := logging.From(ctx)

	var onlineErr error
	if g.online != nil {
		octx, cancel := context.WithTimeout(ctx, g.onlineTimeout)
		out, err := fn(octx, g.online, true)
		cancel()
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			// The caller's context ended, not the online budget.
			return "", goerr.Wrap(ctx.Err(), "generation cancelled")
		}
		if !isUnavailable(err) {
			return "", err
		}
		onlineErr = err
	}

	if g.local == nil {
		return "", goerr.Wrap(types.ErrGenerationUnavailable, "online model unavailable and no local fallback configured",
			goerr.V("online_error", fmt.Sprintf("%v", onlineErr)))
	}

	if g.online != nil {
		logger.Warn("online generation unavailable, downgrading to local model", "error", onlineErr)
	}

	out, err := fn(ctx, g.local, false)
	if err == nil {
		return out, nil
	}
	if !isUnavailable(err) {
		return "", err
	}

	return "", goerr.Wrap(types.ErrGenerationUnavailable, "all generation backends failed",
		goerr.V("online_error", fmt.Sprintf("%v", onlineErr)),
		goerr.V("local_error", err.Error()))
}

// isUnavailable classifies failures that justify a downgrade: timeouts,
// rate limits and transport errors. Anything else (bad request, broken
// output) propagates as-is.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

func buildAnswerUserPrompt(query string, result *model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("## Passages\n\n")
	for i, hit := range result.Hits {
		fmt.Fprintf(&sb, "### Passage %d\n%s\n\n", i+1, hit.Text)
	}
	sb.WriteString("## Question\n\n")
	sb.WriteString(query)
	return sb.String()
}

// confidence derives the reported answer confidence from the mean
// retrieval score, floored so grounded answers keep a usable signal.
func confidence(result *model.RetrievalResult) float64 {
	c := result.MeanScore()
	if c < confidenceFloor {
		c = confidenceFloor
	}
	if c > 1 {
		c = 1
	}
	return c
}

// resolveSources maps cited chunks to deduplicated source document
// names. Resolution failures drop the name rather than the answer.
func (g *Generator) resolveSources(ctx context.Context, result *model.RetrievalResult) []string {
	if g.docs == nil {
		return nil
	}

	logger := logging.From(ctx)
	seen := make(map[types.DocumentID]bool)
	var sources []string
	for _, hit := range result.Hits {
		id := hit.ChunkRef.DocumentID
		if seen[id] {
			continue
		}
		seen[id] = true

		doc, err := g.docs.Get(ctx, id)
		if err != nil {
			logger.Warn("failed to resolve source document", "document_id", id, "error", err)
			continue
		}
		sources = append(sources, doc.SourceName)
	}
	return sources
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt template")
	}
	return sb.String(), nil
}
