// Package ollama implements gollem.LLMClient over the Ollama HTTP API,
// used as the local fallback when the online model is unreachable.
//
// Provider-side session options (system prompt, response schema) are
// not supported by the generate endpoint, so sessions here are
// self-contained: callers embed all instructions in the input text.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/sahayak-lab/sahayak/pkg/utils/safe"
)

const (
	defaultModel      = "llama3.2"
	defaultEmbedModel = "nomic-embed-text"
	defaultTimeout    = 120 * time.Second
)

// Client talks to one Ollama host.
type Client struct {
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

var _ gollem.LLMClient = &Client{}

type Option func(*Client)

// WithModel sets the generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(c *Client) {
		c.embedModel = model
	}
}

// WithHTTPClient replaces the default HTTP client, used by tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.New("ollama base URL is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      defaultModel,
		embedModel: defaultEmbedModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// GenerateEmbedding embeds each input with the embedding model. The
// dimension argument is advisory; the model's native dimension is
// returned and validated by the caller.
func (c *Client) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(input))
	for _, text := range input {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float64, error) {
	var parsed embeddingResponse
	if err := c.post(ctx, "/api/embeddings", &embeddingRequest{
		Model:  c.embedModel,
		Prompt: text,
	}, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embedding) == 0 {
		return nil, goerr.New("ollama returned an empty embedding", goerr.V("model", c.embedModel))
	}
	return parsed.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to create ollama request", goerr.V("path", path))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "ollama request failed", goerr.V("path", path))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return goerr.New("ollama returned an error",
			goerr.V("path", path),
			goerr.V("status", resp.Status),
			goerr.V("body", strings.TrimSpace(string(raw))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode ollama response", goerr.V("path", path))
	}

	return nil
}

// NewSession opens a generation session. gollem session options are
// accepted for interface compatibility but not applied; see the
// package comment.
func (c *Client) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &session{client: c}, nil
}

// session is a thin stateful wrapper over /api/generate. Earlier turns
// are replayed as transcript context on each call.
type session struct {
	client     *Client
	transcript []string
}

var _ gollem.Session = &session{}

func (s *session) prompt(input ...gollem.Input) string {
	var sb strings.Builder
	for _, line := range s.transcript {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	for _, in := range input {
		if text, ok := in.(gollem.Text); ok {
			sb.WriteString(string(text))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (s *session) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	prompt := s.prompt(input...)

	var parsed generateResponse
	if err := s.client.post(ctx, "/api/generate", &generateRequest{
		Model:  s.client.model,
		Prompt: prompt,
		Stream: false,
	}, &parsed); err != nil {
		return nil, err
	}

	s.transcript = append(s.transcript, prompt, parsed.Response)

	return &gollem.Response{Texts: []string{parsed.Response}}, nil
}

func (s *session) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	prompt := s.prompt(input...)

	body, err := json.Marshal(&generateRequest{
		Model:  s.client.model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "ollama request failed")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		safe.Close(ctx, resp.Body)
		return nil, goerr.New("ollama returned an error",
			goerr.V("status", resp.Status),
			goerr.V("body", strings.TrimSpace(string(raw))))
	}

	ch := make(chan *gollem.Response)
	go func() {
		defer close(ch)
		defer safe.Close(ctx, resp.Body)

		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chunk generateResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Response != "" {
				full.WriteString(chunk.Response)
				select {
				case ch <- &gollem.Response{Texts: []string{chunk.Response}}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				break
			}
		}
		s.transcript = append(s.transcript, prompt, full.String())
	}()

	return ch, nil
}

// History is not portable across providers for this client.
func (s *session) History() (*gollem.History, error) {
	return nil, nil
}

func (s *session) AppendHistory(history *gollem.History) error {
	return nil
}

// CountToken estimates with the common 4-runes-per-token heuristic;
// the generate endpoint has no tokenizer API.
func (s *session) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	total := 0
	for _, in := range input {
		if text, ok := in.(gollem.Text); ok {
			total += utf8.RuneCountInString(string(text))
		}
	}
	return (total + 3) / 4, nil
}
