package chunker

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragsearch/internal/model"
	"github.com/xxxsen/ragsearch/internal/tokens"
	"go.uber.org/zap"
)

const (
	MethodSemantic = "semantic"
	MethodSimple   = "simple"

	lookback        = 200
	sentenceMarkers = ".!?\n"
)

// SectionSplitter splits one oversized section into smaller pieces.
type SectionSplitter interface {
	Split(ctx context.Context, section string) ([]string, error)
}

type Chunker struct {
	cfg      Config
	splitter SectionSplitter
	counter  tokens.Counter
}

type Option func(*Chunker)

func WithSplitter(s SectionSplitter) Option {
	return func(c *Chunker) {
		c.splitter = s
	}
}

func WithTokenCounter(counter tokens.Counter) Option {
	return func(c *Chunker) {
		if counter != nil {
			c.counter = counter
		}
	}
}

func New(cfg Config, opts ...Option) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Chunker{cfg: cfg, counter: tokens.Heuristic()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChunkDocument splits content into chunks. It never fails: when the LLM
// path errors the document is chunked by rules instead.
func (c *Chunker) ChunkDocument(ctx context.Context, content, title, source string, metadata map[string]interface{}) []*model.Chunk {
	if isBlank(content) {
		return []*model.Chunk{}
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source", source))

	var segs []segment
	method := MethodSimple
	if c.cfg.UseSemanticSplitting && c.splitter != nil && len(content) > c.cfg.ChunkSize {
		res, err := c.semanticSegments(ctx, content)
		switch {
		case err != nil:
			logger.Warn("semantic chunking failed, falling back to simple chunking", zap.Error(err))
		case len(res) > 0:
			segs = res
			method = MethodSemantic
		}
	}
	if segs == nil {
		segs = c.ruleSegments(content)
	}
	segs = c.mergeSmall(content, segs)
	chunks := c.build(content, segs, title, source, metadata, method)
	logger.Debug("document chunked",
		zap.String("method", method),
		zap.Int("size", len(content)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

func (c *Chunker) ruleSegments(content string) []segment {
	if !c.cfg.PreserveStructure {
		whole := trimSpan(content, 0, len(content))
		if len(whole.text) <= c.cfg.ChunkSize {
			return []segment{whole}
		}
		return c.splitBackward(content, whole.start, whole.end)
	}
	segs, _ := c.pack(content, func(sp span) ([]segment, error) {
		return c.splitBackward(content, sp.start, sp.end), nil
	})
	return segs
}

func (c *Chunker) semanticSegments(ctx context.Context, content string) ([]segment, error) {
	return c.pack(content, func(sp span) ([]segment, error) {
		return c.splitWithLLM(ctx, content, sp)
	})
}

// pack greedily joins consecutive sections while the joined text fits in
// ChunkSize. Sections above MaxChunkSize go to oversized.
func (c *Chunker) pack(content string, oversized func(span) ([]segment, error)) ([]segment, error) {
	var out []segment
	bufStart, bufEnd := -1, -1
	flush := func() {
		if bufStart < 0 {
			return
		}
		out = append(out, trimSpan(content, bufStart, bufEnd))
		bufStart, bufEnd = -1, -1
	}
	for _, sec := range splitStructure(content) {
		if bufStart >= 0 && trimmedLen(content[bufStart:sec.end]) <= c.cfg.ChunkSize {
			bufEnd = sec.end
			continue
		}
		flush()
		if trimmedLen(content[sec.start:sec.end]) > c.cfg.MaxChunkSize {
			pieces, err := oversized(sec)
			if err != nil {
				return nil, err
			}
			out = append(out, pieces...)
			continue
		}
		bufStart, bufEnd = sec.start, sec.end
	}
	flush()
	return out, nil
}

// splitBackward cuts [start,end) into pieces of at most ChunkSize bytes,
// preferring to end a piece after a sentence terminator or newline found
// within the lookback window. Consecutive pieces overlap by ChunkOverlap.
func (c *Chunker) splitBackward(content string, start, end int) []segment {
	var out []segment
	for start < end {
		limit := start + c.cfg.ChunkSize
		if limit >= end {
			if !isBlank(content[start:end]) {
				out = append(out, trimSpan(content, start, end))
			}
			break
		}
		limit = runeFloor(content, limit)
		if limit <= start {
			limit = start + 1
			for limit < end && !isRuneStart(content, limit) {
				limit++
			}
		}
		cut := limit
		low := max(start+c.cfg.MinChunkSize, limit-lookback)
		for i := limit - 1; i >= low; i-- {
			if strings.IndexByte(sentenceMarkers, content[i]) >= 0 {
				cut = i + 1
				break
			}
		}
		if !isBlank(content[start:cut]) {
			out = append(out, trimSpan(content, start, cut))
		}
		next := runeFloor(content, cut-c.cfg.ChunkOverlap)
		if next <= start {
			next = cut
		}
		start = next
	}
	return out
}

func (c *Chunker) splitWithLLM(ctx context.Context, content string, sp span) ([]segment, error) {
	section := strings.TrimSpace(content[sp.start:sp.end])
	pieces, err := c.splitter.Split(ctx, section)
	if err != nil {
		return nil, err
	}
	out := make([]segment, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if len(piece) < c.cfg.MinChunkSize || len(piece) > c.cfg.MaxChunkSize {
			logutil.GetLogger(ctx).Debug("llm piece out of bounds, splitting section by rules",
				zap.Int("piece_size", len(piece)),
				zap.Int("section_size", len(section)),
			)
			return c.splitBackward(content, sp.start, sp.end), nil
		}
		out = append(out, segment{text: piece})
	}
	if len(out) == 0 {
		return c.splitBackward(content, sp.start, sp.end), nil
	}
	return out, nil
}

// mergeSmall folds segments shorter than MinChunkSize into the following
// one while the result stays within MaxChunkSize. A short segment that
// still cannot be merged is dropped unless it ends the document.
func (c *Chunker) mergeSmall(content string, segs []segment) []segment {
	out := make([]segment, 0, len(segs))
	for i := 0; i < len(segs); i++ {
		cur := segs[i]
		for len(cur.text) < c.cfg.MinChunkSize && i+1 < len(segs) {
			merged := joinSegments(content, cur, segs[i+1])
			if len(merged.text) > c.cfg.MaxChunkSize {
				break
			}
			cur = merged
			i++
		}
		if len(cur.text) < c.cfg.MinChunkSize && i < len(segs)-1 {
			continue
		}
		out = append(out, cur)
	}
	return out
}

func joinSegments(content string, a, b segment) segment {
	if a.located && b.located && b.start >= a.start {
		return trimSpan(content, a.start, max(a.end, b.end))
	}
	return segment{text: a.text + "\n\n" + b.text}
}

func (c *Chunker) build(content string, segs []segment, title, source string, metadata map[string]interface{}, method string) []*model.Chunk {
	chunks := make([]*model.Chunk, 0, len(segs))
	prevEnd := 0
	for i, seg := range segs {
		start, end := seg.start, seg.end
		if !seg.located {
			start = prevEnd
			if idx := strings.Index(content[prevEnd:], seg.text); idx >= 0 {
				start = prevEnd + idx
			}
			end = min(start+len(seg.text), len(content))
		}
		meta := make(map[string]interface{}, len(metadata)+4)
		meta["title"] = title
		meta["source"] = source
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk_method"] = method
		meta["total_chunks"] = len(segs)
		chunks = append(chunks, &model.Chunk{
			Content:    seg.text,
			Index:      i,
			StartChar:  start,
			EndChar:    end,
			Metadata:   meta,
			TokenCount: c.counter.Count(seg.text),
		})
		if end > prevEnd {
			prevEnd = end
		}
	}
	return chunks
}

func isRuneStart(s string, i int) bool {
	return runeFloor(s, i) == i
}
