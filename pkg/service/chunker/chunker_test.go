package chunker_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/service/chunker"
)

func newChunker(t *testing.T, min, max int) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(config.ChunkConfig{MinTokens: min, MaxTokens: max})
	gt.NoError(t, err).Required()
	return c
}

func paragraph(sentence string, totalRunes int) string {
	var sb strings.Builder
	for sb.Len() < totalRunes {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sentence)
	}
	return sb.String()[:totalRunes]
}

func TestSplitThreeParagraphDocument(t *testing.T) {
	// Three ~300 rune paragraphs with budgets 200/400 must give one
	// chunk per paragraph, none truncated.
	sentence := "Linear equations describe straight lines on a plane."
	paras := []string{
		paragraph(sentence, 300),
		paragraph(sentence, 300),
		paragraph(sentence, 300),
	}
	doc := &model.Document{
		ID:    "doc-algebra-1",
		Topic: "algebra",
		Text:  strings.Join(paras, "\n\n"),
	}

	chunks, err := newChunker(t, 200, 400).Split(doc)
	gt.NoError(t, err).Required()
	gt.Array(t, chunks).Length(3)

	for i, c := range chunks {
		gt.Value(t, c.Index).Equal(i)
		gt.Value(t, c.DocumentID).Equal(doc.ID)
		gt.Value(t, c.Topic).Equal(doc.Topic)
		gt.Bool(t, c.Truncated).False()
		gt.Bool(t, c.TokenCount >= 200).True()
		gt.Bool(t, c.TokenCount <= 400).True()
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	doc := &model.Document{
		ID:    "doc-1",
		Topic: "chemistry",
		Text: "Atoms bond into molecules. Covalent bonds share electrons.\n\n" +
			"Ionic bonds transfer electrons between atoms. " +
			"The periodic table orders elements by atomic number.",
	}
	c := newChunker(t, 40, 120)

	first, err := c.Split(doc)
	gt.NoError(t, err).Required()
	second, err := c.Split(doc)
	gt.NoError(t, err).Required()

	gt.Array(t, second).Length(len(first))
	for i := range first {
		gt.Value(t, second[i].Text).Equal(first[i].Text)
		gt.Value(t, second[i].Hash).Equal(first[i].Hash)
	}
}

func TestSplitEmptyDocument(t *testing.T) {
	for _, text := range []string{"", "   \n\t  \n\n ", "\x00\x01\x02"} {
		doc := &model.Document{ID: "doc-empty", Text: text}
		_, err := newChunker(t, 200, 400).Split(doc)
		gt.Bool(t, errors.Is(err, types.ErrEmptyDocument)).True()
	}
}

func TestSplitRunOnSentenceTruncates(t *testing.T) {
	// A single sentence of 1000 runes with no terminator must be
	// force-split at the max budget and flagged.
	doc := &model.Document{
		ID:   "doc-runon",
		Text: strings.Repeat("x", 1000),
	}

	chunks, err := newChunker(t, 200, 400).Split(doc)
	gt.NoError(t, err).Required()
	gt.Array(t, chunks).Length(3)

	gt.Value(t, chunks[0].TokenCount).Equal(400)
	gt.Value(t, chunks[1].TokenCount).Equal(400)
	gt.Value(t, chunks[2].TokenCount).Equal(200)
	for _, c := range chunks {
		gt.Bool(t, c.Truncated).True()
	}
}

func TestSplitOversizeParagraphBySentence(t *testing.T) {
	// An oversize paragraph with sentence boundaries must split there,
	// never truncate.
	sentence := strings.Repeat("a", 149) + "."
	doc := &model.Document{
		ID:   "doc-oversize",
		Text: strings.Join([]string{sentence, sentence, sentence, sentence}, " "),
	}

	chunks, err := newChunker(t, 200, 320).Split(doc)
	gt.NoError(t, err).Required()
	gt.Array(t, chunks).Length(2)
	for _, c := range chunks {
		gt.Bool(t, c.Truncated).False()
		gt.Bool(t, c.TokenCount <= 320).True()
	}
}

func TestSplitMergesShortParagraphs(t *testing.T) {
	doc := &model.Document{
		ID: "doc-short",
		Text: "Short opening line.\n\n" +
			"Another short paragraph.\n\n" +
			"And a closing remark.",
	}

	chunks, err := newChunker(t, 200, 400).Split(doc)
	gt.NoError(t, err).Required()
	gt.Array(t, chunks).Length(1)
	gt.Bool(t, strings.Contains(chunks[0].Text, "Short opening line.")).True()
	gt.Bool(t, strings.Contains(chunks[0].Text, "And a closing remark.")).True()
}

func TestNormalize(t *testing.T) {
	t.Run("collapses whitespace and strips controls", func(t *testing.T) {
		in := "First\tline  with   spaces\x07 and a bell.\r\n\r\n\r\nSecond\rparagraph."
		out := chunker.Normalize(in)
		gt.Value(t, out).Equal("First line with spaces and a bell.\n\nSecond paragraph.")
	})

	t.Run("joins soft line breaks inside a paragraph", func(t *testing.T) {
		in := "One sentence\nsplit over\nlines.\n\nNext paragraph."
		out := chunker.Normalize(in)
		gt.Value(t, out).Equal("One sentence split over lines.\n\nNext paragraph.")
	})
}

func TestHashStability(t *testing.T) {
	gt.Value(t, chunker.Hash("some chunk text")).Equal(chunker.Hash("some chunk text"))
	gt.Bool(t, chunker.Hash("a") == chunker.Hash("b")).False()
}
