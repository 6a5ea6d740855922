package generator

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed prompt/quiz_system.md
var quizSystemPromptTmpl string

var quizSystemPrompt = template.Must(template.New("quiz_system").Parse(quizSystemPromptTmpl))

// quizJSONSchema validates the raw model output before any item is
// accepted into a session.
const quizJSONSchema = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["question", "options", "answer", "explanation", "difficulty"],
        "properties": {
          "question": {"type": "string", "minLength": 1},
          "options": {
            "type": "array",
            "items": {"type": "string"},
            "minItems": 4,
            "maxItems": 4
          },
          "answer": {"type": "string", "minLength": 1},
          "explanation": {"type": "string"},
          "difficulty": {"type": "string", "enum": ["easy", "medium", "hard"]}
        }
      }
    }
  }
}`

var quizSchemaLoader = gojsonschema.NewStringLoader(quizJSONSchema)

// QuizRequest parameterizes one quiz generation call.
type QuizRequest struct {
	Topic    types.Topic
	Count    int
	Profile  *model.DifficultyProfile
	Passages []model.Hit
}

type quizResponse struct {
	Questions []quizQuestion `json:"questions"`
}

type quizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
	Difficulty  string   `json:"difficulty"`
}

// GenerateQuizItems produces validated quiz items grounded on the
// request's passages. Malformed model output is regenerated once, then
// fails with ErrMalformedGeneration.
func (g *Generator) GenerateQuizItems(ctx context.Context, req *QuizRequest) ([]*model.QuizItem, error) {
	if len(req.Passages) == 0 {
		return nil, goerr.New("quiz generation needs at least one passage", goerr.V("topic", req.Topic))
	}
	if req.Count <= 0 {
		return nil, goerr.New("quiz item count must be positive", goerr.V("count", req.Count))
	}

	profile := req.Profile
	if profile == nil {
		profile = model.DefaultDifficultyProfile()
	}

	systemPrompt, err := renderTemplate(quizSystemPrompt, quizPromptData(profile))
	if err != nil {
		return nil, err
	}
	userPrompt := buildQuizUserPrompt(req)

	logger := logging.From(ctx)
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := g.generate(ctx, func(ctx context.Context, llm gollem.LLMClient, structured bool) (string, error) {
			return g.generateQuizText(ctx, llm, structured, systemPrompt, userPrompt)
		})
		if err != nil {
			return nil, err
		}

		items, err := parseQuizItems(text, req)
		if err == nil {
			return items, nil
		}

		lastErr = err
		logger.Warn("malformed quiz generation", "attempt", attempt+1, "error", err)
	}

	return nil, goerr.Wrap(types.ErrMalformedGeneration, "quiz generation kept producing invalid output",
		goerr.V("topic", req.Topic), goerr.V("cause", lastErr.Error()))
}

func (g *Generator) generateQuizText(ctx context.Context, llm gollem.LLMClient, structured bool, systemPrompt, userPrompt string) (string, error) {
	var session gollem.Session
	var err error
	var input gollem.Input

	if structured {
		session, err = llm.NewSession(ctx,
			gollem.WithSessionContentType(gollem.ContentTypeJSON),
			gollem.WithSessionResponseSchema(quizResponseSchema()),
			gollem.WithSessionSystemPrompt(systemPrompt),
		)
		input = gollem.Text(userPrompt)
	} else {
		session, err = llm.NewSession(ctx)
		input = gollem.Text(systemPrompt +
			"\n\nRespond with ONLY a JSON object of the form " +
			`{"questions": [{"question", "options", "answer", "explanation", "difficulty"}]}` +
			" and no other text.\n\n" + userPrompt)
	}
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, input)
	if err != nil {
		return "", goerr.Wrap(err, "quiz generation failed")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("quiz generation produced no output")
	}

	return strings.Join(resp.Texts, ""), nil
}

// parseQuizItems validates raw model output against the JSON schema
// and converts it to domain items.
func parseQuizItems(text string, req *QuizRequest) ([]*model.QuizItem, error) {
	raw := stripCodeFence(text)

	result, err := gojsonschema.Validate(quizSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, goerr.Wrap(err, "quiz output is not valid JSON")
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, desc.String())
		}
		return nil, goerr.New("quiz output violates the response schema",
			goerr.V("violations", strings.Join(descs, "; ")))
	}

	var parsed quizResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to decode quiz output")
	}

	refs := make([]types.ChunkRef, 0, len(req.Passages))
	for _, hit := range req.Passages {
		refs = append(refs, hit.ChunkRef)
	}

	items := make([]*model.QuizItem, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		item := &model.QuizItem{
			ID:           types.NewItemID(),
			Question:     q.Question,
			Options:      q.Options,
			Answer:       q.Answer,
			Explanation:  q.Explanation,
			Topic:        req.Topic,
			Difficulty:   types.Difficulty(q.Difficulty),
			SourceChunks: refs,
		}
		if err := item.Validate(); err != nil {
			return nil, goerr.Wrap(err, "generated quiz item is invalid")
		}
		items = append(items, item)

		if len(items) == req.Count {
			break
		}
	}

	if len(items) < req.Count {
		return nil, goerr.New("quiz output has too few questions",
			goerr.V("want", req.Count), goerr.V("got", len(items)))
	}

	return items, nil
}

// stripCodeFence removes a surrounding markdown code fence, which local
// models commonly wrap JSON in despite instructions.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

type quizMixShare struct {
	Difficulty string
	Percent    int
}

type quizPromptParams struct {
	Mix          []quizMixShare
	Foundational bool
}

func quizPromptData(profile *model.DifficultyProfile) *quizPromptParams {
	var total float64
	for _, share := range profile.Mix {
		total += share
	}

	params := &quizPromptParams{Foundational: profile.Foundational}
	for difficulty, share := range profile.Mix {
		percent := 0
		if total > 0 {
			percent = int(share / total * 100)
		}
		params.Mix = append(params.Mix, quizMixShare{
			Difficulty: difficulty.String(),
			Percent:    percent,
		})
	}
	sort.Slice(params.Mix, func(i, j int) bool {
		return params.Mix[i].Difficulty < params.Mix[j].Difficulty
	})

	return params
}

func buildQuizUserPrompt(req *QuizRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create %d multiple-choice questions about %q from these passages.\n\n", req.Count, string(req.Topic))
	for i, hit := range req.Passages {
		fmt.Fprintf(&sb, "### Passage %d\n%s\n\n", i+1, hit.Text)
	}
	return sb.String()
}

func quizResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Type:        gollem.TypeObject,
		Title:       "QuizItems",
		Description: "Generated multiple-choice quiz questions",
		Properties: map[string]*gollem.Parameter{
			"questions": {
				Type:     gollem.TypeArray,
				Required: true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"question": {
							Type:        gollem.TypeString,
							Description: "The question text",
							Required:    true,
						},
						"options": {
							Type:        gollem.TypeArray,
							Description: "Exactly four answer options",
							Items:       &gollem.Parameter{Type: gollem.TypeString},
							Required:    true,
						},
						"answer": {
							Type:        gollem.TypeString,
							Description: "The correct option, copied verbatim",
							Required:    true,
						},
						"explanation": {
							Type:        gollem.TypeString,
							Description: "Why the answer is correct",
							Required:    true,
						},
						"difficulty": {
							Type:     gollem.TypeString,
							Enum:     []string{"easy", "medium", "hard"},
							Required: true,
						},
					},
				},
			},
		},
	}
}
