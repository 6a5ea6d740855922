package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/minio/highwayhash"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// TokenEstimator measures the budget cost of a text span. The default
// counts runes; swap in a model tokenizer when budgets must match the
// embedding model exactly.
type TokenEstimator func(text string) int

// RuneEstimator is the default token estimator.
func RuneEstimator(text string) int {
	return utf8.RuneCountInString(text)
}

// hashKey is fixed so content hashes are comparable across processes
// and restarts. Changing it invalidates every stored chunk hash.
var hashKey = []byte("sahayak-chunk-content-hash-key00")

// Chunker splits documents into retrieval units. Splitting is
// deterministic: the same normalized text always yields byte-identical
// chunk boundaries, which re-ingestion diffing depends on.
type Chunker struct {
	minTokens int
	maxTokens int
	estimate  TokenEstimator
	now       func() time.Time
}

type Option func(*Chunker)

// WithTokenEstimator replaces the default rune-count estimator.
func WithTokenEstimator(fn TokenEstimator) Option {
	return func(c *Chunker) {
		c.estimate = fn
	}
}

// WithClock overrides chunk timestamping, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Chunker) {
		c.now = now
	}
}

func New(cfg config.ChunkConfig, opts ...Option) (*Chunker, error) {
	if cfg.MinTokens <= 0 || cfg.MaxTokens < cfg.MinTokens {
		return nil, goerr.New("invalid chunk budgets",
			goerr.V("min", cfg.MinTokens), goerr.V("max", cfg.MaxTokens))
	}

	c := &Chunker{
		minTokens: cfg.MinTokens,
		maxTokens: cfg.MaxTokens,
		estimate:  RuneEstimator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Split chunks the document text. Paragraphs are the primary unit:
// short paragraphs merge forward until the minimum budget is met, and
// paragraphs over the maximum budget split at sentence boundaries. A
// single sentence longer than the maximum is force-split at the budget
// offset and flagged Truncated.
func (c *Chunker) Split(doc *model.Document) ([]*model.Chunk, error) {
	text := Normalize(doc.Text)
	if text == "" {
		return nil, goerr.Wrap(types.ErrEmptyDocument, "document has no text after normalization",
			goerr.V("document_id", doc.ID), goerr.V("source", doc.SourceName))
	}

	b := &builder{chunker: c, doc: doc}
	for _, para := range splitParagraphs(text) {
		if c.estimate(para) > c.maxTokens {
			b.addOversize(para)
			continue
		}
		b.add(para, "\n\n")
	}
	b.flush(false)

	return b.chunks, nil
}

type builder struct {
	chunker *Chunker
	doc     *model.Document
	buf     strings.Builder
	bufCost int
	chunks  []*model.Chunk
}

// add appends one unit (a paragraph, or a sentence from an oversize
// paragraph) to the pending chunk, flushing around the budget
// boundaries. sep joins the unit to pending text.
func (b *builder) add(unit, sep string) {
	cost := b.chunker.estimate(unit)
	if b.bufCost > 0 && b.bufCost+cost > b.chunker.maxTokens {
		b.flush(false)
	}

	if b.bufCost > 0 {
		b.buf.WriteString(sep)
	}
	b.buf.WriteString(unit)
	b.bufCost += cost

	if b.bufCost >= b.chunker.minTokens {
		b.flush(false)
	}
}

// addOversize splits a paragraph that exceeds the maximum budget at
// sentence boundaries, force-splitting run-on sentences.
func (b *builder) addOversize(para string) {
	for _, sentence := range splitSentences(para) {
		if b.chunker.estimate(sentence) <= b.chunker.maxTokens {
			b.add(sentence, " ")
			continue
		}

		// Run-on sentence with no usable boundary. Emit what is
		// pending, then slice at the budget offset.
		b.flush(false)
		for _, piece := range sliceRunes(sentence, b.chunker.maxTokens) {
			b.buf.WriteString(piece)
			b.bufCost = b.chunker.estimate(piece)
			b.flush(true)
		}
	}
}

func (b *builder) flush(truncated bool) {
	if b.bufCost == 0 {
		return
	}

	text := b.buf.String()
	b.chunks = append(b.chunks, &model.Chunk{
		DocumentID: b.doc.ID,
		Index:      len(b.chunks),
		Topic:      b.doc.Topic,
		Text:       text,
		TokenCount: b.chunker.estimate(text),
		Truncated:  truncated,
		Hash:       Hash(text),
		CreatedAt:  b.chunker.now().UTC(),
	})
	b.buf.Reset()
	b.bufCost = 0
}

// Hash returns the content hash used for re-ingestion diffing.
func Hash(text string) string {
	return fmt.Sprintf("%016x", highwayhash.Sum64([]byte(text), hashKey))
}

var (
	lineBreakRe = regexp.MustCompile(`\r\n|\r`)
	paraBreakRe = regexp.MustCompile(`\n\s*\n+`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
)

// Normalize canonicalizes document text before splitting: line endings
// unified, paragraph breaks reduced to exactly one blank line, other
// control characters stripped, horizontal whitespace collapsed.
func Normalize(text string) string {
	text = lineBreakRe.ReplaceAllString(text, "\n")
	text = paraBreakRe.ReplaceAllString(text, "\n\n")

	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)

	text = spaceRunRe.ReplaceAllString(text, " ")

	paras := strings.Split(text, "\n\n")
	out := paras[:0]
	for _, p := range paras {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\n", " "))
		if p != "" {
			out = append(out, p)
		}
	}

	return strings.Join(out, "\n\n")
}

func splitParagraphs(normalized string) []string {
	return strings.Split(normalized, "\n\n")
}

// sentenceEndRe matches a sentence terminator followed by whitespace.
// The danda covers Hindi curriculum material.
var sentenceEndRe = regexp.MustCompile(`([.!?।])\s+`)

func splitSentences(para string) []string {
	marked := sentenceEndRe.ReplaceAllString(para, "$1\x00")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

func sliceRunes(text string, size int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}
