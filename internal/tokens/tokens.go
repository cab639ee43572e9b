package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter returns the token count of a text.
type Counter interface {
	Count(text string) int
}

type heuristic struct{}

func (heuristic) Count(text string) int {
	return len(text) / 4
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Heuristic counts one token per four bytes.
func Heuristic() Counter {
	return heuristic{}
}

// New builds a counter by name. An empty name or "heuristic" selects the
// byte heuristic; "tiktoken" uses the cl100k_base encoding.
func New(name string) (Counter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "heuristic":
		return heuristic{}, nil
	case "tiktoken", "cl100k_base":
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
		return &tiktokenCounter{enc: enc}, nil
	default:
		return nil, fmt.Errorf("unsupported tokenizer: %s", name)
	}
}
