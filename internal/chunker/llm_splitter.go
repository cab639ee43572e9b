package chunker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/ragsearch/internal/ai"
)

const chunkDelimiter = "---CHUNK---"

type llmSplitter struct {
	gen     ai.IGenerator
	cfg     Config
	timeout time.Duration
}

// NewLLMSplitter asks the generator for semantically coherent pieces of a
// section. A zero timeout leaves the caller's deadline in charge.
func NewLLMSplitter(gen ai.IGenerator, cfg Config, timeout time.Duration) SectionSplitter {
	return &llmSplitter{gen: gen, cfg: cfg, timeout: timeout}
}

func (s *llmSplitter) Split(ctx context.Context, section string) ([]string, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("llm splitter has no generator")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.gen.Generate(ctx, s.prompt(section))
	if err != nil {
		return nil, fmt.Errorf("llm split: %w", err)
	}
	pieces := parsePieces(resp)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("llm split: empty response")
	}
	return pieces, nil
}

func (s *llmSplitter) prompt(section string) string {
	return fmt.Sprintf(`Split the following text into semantically coherent chunks. Each chunk should:
1. Be roughly %d characters long
2. End at natural semantic boundaries
3. Maintain context and readability
4. Be at least %d and at most %d characters

Do not rewrite, summarize or translate the text.
Return only the split text with "%s" as separator between chunks.

Text to split:
%s`, s.cfg.ChunkSize, s.cfg.MinChunkSize, s.cfg.MaxChunkSize, chunkDelimiter, section)
}

func parsePieces(resp string) []string {
	raw := strings.Split(resp, chunkDelimiter)
	out := make([]string, 0, len(raw))
	for _, piece := range raw {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		out = append(out, piece)
	}
	return out
}
