package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
)

// Chunker splits extracted text into token-bounded, sentence-aligned chunks
// with a fixed-size overlap between neighbors. Output is a JSON array of
// chunks.
type Chunker struct {
	counter      TokenCounter
	chunkTokens  int
	chunkOverlap int
}

// NewChunker creates the chunk transformer. Overlap must be smaller than the
// chunk budget; config validation enforces that before we get here.
func NewChunker(counter TokenCounter, chunkTokens, chunkOverlap int) *Chunker {
	return &Chunker{
		counter:      counter,
		chunkTokens:  chunkTokens,
		chunkOverlap: chunkOverlap,
	}
}

func (s *Chunker) Stage() models.Stage { return models.StageChunk }

func (s *Chunker) Transform(ctx context.Context, job *models.Job, input []byte) ([]byte, error) {
	text := normalizeText(string(input))
	if text == "" {
		return nil, worker.Validation(fmt.Errorf("no usable text after normalization"))
	}

	chunks := s.Split(text)
	if len(chunks) == 0 {
		return nil, worker.Validation(fmt.Errorf("text produced no chunks"))
	}

	out, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("encoding chunks: %w", err)
	}
	return out, nil
}

// Split breaks normalized text into chunks. Sentences are packed greedily up
// to the token budget; each new chunk starts with the trailing sentences of
// the previous one until the overlap budget is spent, so no boundary loses
// context. A single sentence over the budget becomes its own chunk rather
// than being cut mid-sentence.
func (s *Chunker) Split(text string) []models.Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []models.Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.Join(current, " ")
		chunks = append(chunks, models.Chunk{
			Index:      len(chunks),
			Text:       joined,
			TokenCount: s.counter.Count(joined),
		})
	}

	for _, sentence := range sentences {
		n := s.counter.Count(sentence)
		if currentTokens+n > s.chunkTokens && len(current) > 0 {
			flush()
			current, currentTokens = s.overlapTail(current)
		}
		current = append(current, sentence)
		currentTokens += n
	}
	flush()

	return chunks
}

// overlapTail returns the suffix of the finished chunk's sentences that fits
// in the overlap budget, to seed the next chunk.
func (s *Chunker) overlapTail(sentences []string) ([]string, int) {
	var tail []string
	tokens := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		n := s.counter.Count(sentences[i])
		if tokens+n > s.chunkOverlap {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		tokens += n
	}
	return tail, tokens
}

// normalizeText collapses whitespace runs and drops lines that carry no
// letters or digits (page rules, OCR noise).
func normalizeText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || !hasWordChars(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func hasWordChars(line string) bool {
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"inc": true, "ltd": true, "co": true, "no": true, "fig": true,
	"e.g": true, "i.e": true, "al": true,
}

// splitSentences splits text on sentence-ending punctuation, keeping the
// punctuation with the sentence. Periods inside abbreviations, initials, and
// numbers do not split.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		if r == '.' && !sentenceBreak(runes, start, i) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// sentenceBreak reports whether the period at runes[i] ends a sentence.
func sentenceBreak(runes []rune, start, i int) bool {
	// Number like 3.14 or section 2.1.
	if i > start && unicode.IsDigit(runes[i-1]) && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
		return false
	}

	// Last word before the period.
	wordStart := i
	for wordStart > start && !unicode.IsSpace(runes[wordStart-1]) {
		wordStart--
	}
	word := strings.ToLower(strings.TrimRight(string(runes[wordStart:i]), "."))
	if abbreviations[word] {
		return false
	}
	// Single-letter initial, as in "J. Smith".
	if len([]rune(word)) == 1 && unicode.IsLetter([]rune(word)[0]) {
		return false
	}
	return true
}
