package tokenizer

import (
	"strings"
	"sync"
	"unicode"
)

// Tokenizer counts and windows text in model tokens. The critic and
// synthesizer use it to keep evidence inside a prompt budget.
type Tokenizer interface {
	Encode(text string) []int
	CountTokens(text string) int
	DecodeIds(ids []int) string
}

var _ Tokenizer = (*SimpleTokenizer)(nil)

// SimpleTokenizer is a dependency-free approximation: words, numbers,
// single Han runes and punctuation each count as one token. Safe for
// concurrent use.
type SimpleTokenizer struct {
	mu       sync.Mutex
	vocab    map[string]int
	invVocab map[int]string
	nextID   int
}

// NewSimpleTokenizer creates a tokenizer with an empty vocabulary.
func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		nextID:   1,
	}
}

func (t *SimpleTokenizer) addToken(tok string) int {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	id := t.nextID
	t.vocab[tok] = id
	t.invVocab[id] = tok
	t.nextID++
	return id
}

func splitTokens(s string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.Is(unicode.Han, r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}

	flush()
	return toks
}

// Encode maps text to vocabulary ids, growing the vocabulary as needed.
func (t *SimpleTokenizer) Encode(text string) []int {
	toks := splitTokens(text)
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(toks))
	for _, tok := range toks {
		ids = append(ids, t.addToken(tok))
	}
	return ids
}

// CountTokens does not touch the vocabulary.
func (t *SimpleTokenizer) CountTokens(text string) int {
	return len(splitTokens(text))
}

// DecodeIds joins known tokens with single spaces.
func (t *SimpleTokenizer) DecodeIds(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if tok, ok := t.invVocab[id]; ok {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, " ")
}

// Truncate returns text cut to at most max tokens and whether it was cut.
// A non-positive max leaves text untouched.
func Truncate(tok Tokenizer, text string, max int) (string, bool) {
	if tok == nil || max <= 0 {
		return text, false
	}
	if tok.CountTokens(text) <= max {
		return text, false
	}
	ids := tok.Encode(text)
	if len(ids) > max {
		ids = ids[:max]
	}
	return tok.DecodeIds(ids), true
}
