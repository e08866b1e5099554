package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lorekeep/lorekeep/internal/config"
)

// Chunk is a bounded span of extracted text ready for embedding.
type Chunk struct {
	Index   int
	Content string
}

// Chunker splits extracted text into overlapping chunks. Paragraph
// boundaries are preferred; oversized paragraphs fall back to sentence
// splits and finally to hard character cuts.
type Chunker struct {
	maxChunkSize int
	overlap      int
	sentences    *regexp.Regexp
}

func New(cfg config.ChunkerConfig) *Chunker {
	maxSize := cfg.MaxChunkSize
	if maxSize <= 0 {
		maxSize = 1000
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 2
	}
	return &Chunker{
		maxChunkSize: maxSize,
		overlap:      overlap,
		sentences:    regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`),
	}
}

// Split breaks text into chunks of at most the configured size.
// Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var pieces []string
	for _, paragraph := range splitParagraphs(trimmed) {
		if len(paragraph) <= c.maxChunkSize {
			pieces = append(pieces, paragraph)
			continue
		}
		pieces = append(pieces, c.splitOversized(paragraph)...)
	}

	chunks := make([]Chunk, 0, len(pieces))
	var carry string
	for _, piece := range pieces {
		content := piece
		if carry != "" && len(carry)+1+len(piece) <= c.maxChunkSize {
			content = carry + "\n" + piece
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Content: content})
		carry = c.tail(piece)
	}
	return chunks
}

// splitOversized cuts a paragraph that exceeds the chunk size. Sentences
// are packed greedily; a single sentence longer than the limit is cut at
// the limit.
func (c *Chunker) splitOversized(paragraph string) []string {
	sentences := c.sentences.FindAllString(paragraph, -1)
	if len(sentences) == 0 {
		sentences = []string{paragraph}
	}

	var pieces []string
	var builder strings.Builder
	flush := func() {
		if builder.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(builder.String()))
			builder.Reset()
		}
	}

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(sentence) > c.maxChunkSize {
			flush()
			for len(sentence) > c.maxChunkSize {
				cut := runeAlign(sentence, c.maxChunkSize)
				pieces = append(pieces, sentence[:cut])
				sentence = sentence[runeAlign(sentence, c.maxChunkSize-c.overlap):]
			}
			if strings.TrimSpace(sentence) != "" {
				pieces = append(pieces, sentence)
			}
			continue
		}
		if builder.Len()+1+len(sentence) > c.maxChunkSize {
			flush()
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(sentence)
	}
	flush()
	return pieces
}

// tail returns the trailing overlap window of a piece, aligned to a word
// boundary when one exists.
func (c *Chunker) tail(piece string) string {
	if c.overlap == 0 || len(piece) <= c.overlap {
		return ""
	}
	start := len(piece) - c.overlap
	for start < len(piece) && !utf8.RuneStart(piece[start]) {
		start++
	}
	window := piece[start:]
	if cut := strings.IndexByte(window, ' '); cut >= 0 && cut+1 < len(window) {
		window = window[cut+1:]
	}
	return window
}

// runeAlign returns the largest rune-aligned cut offset not exceeding
// limit, except that a single rune wider than the limit is kept whole.
func runeAlign(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	if limit < 0 {
		limit = 0
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	if limit == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return limit
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(normalized, "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, paragraph := range raw {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph != "" {
			paragraphs = append(paragraphs, paragraph)
		}
	}
	return paragraphs
}
