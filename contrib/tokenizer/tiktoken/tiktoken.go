package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/agentic-rag/rag/tokenizer"
)

// Tokenizer adapts a tiktoken encoding to tokenizer.Tokenizer so evidence
// budgets match the generation model's own token accounting.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// NewTiktokenTokenizer resolves name as a model first and as an encoding
// (for example "cl100k_base") second.
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("tiktoken: unknown model or encoding %q: %w", name, err)
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

func (t *Tokenizer) DecodeIds(ids []int) string {
	return t.enc.Decode(ids)
}
