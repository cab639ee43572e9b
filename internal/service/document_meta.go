package service

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/ragsearch/internal/source"
)

const titleSearchLines = 10

// parsedDocument is a source file split into front matter and body.
type parsedDocument struct {
	Title    string
	Body     string
	Metadata map[string]interface{}
}

func parseDocument(content string, file source.File, now time.Time) *parsedDocument {
	meta := map[string]interface{}{
		"file_path":      file.Path,
		"file_size":      len(content),
		"ingestion_date": now.UTC().Format(time.RFC3339),
	}
	front, body, err := splitFrontMatter(content)
	if err != nil {
		meta["front_matter_error"] = err.Error()
	}
	for k, v := range front {
		meta[k] = v
	}
	meta["line_count"] = strings.Count(body, "\n") + 1
	meta["word_count"] = len(strings.Fields(body))
	return &parsedDocument{
		Title:    extractTitle(body, file.Path),
		Body:     body,
		Metadata: meta,
	}
}

// extractTitle returns the first level-one heading found near the top of
// the document, or the file name without extension.
func extractTitle(content, path string) string {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Level != 1 || heading.Lines().Len() == 0 {
			continue
		}
		line := strings.Count(content[:heading.Lines().At(0).Start], "\n")
		if line >= titleSearchLines {
			break
		}
		if title := strings.TrimSpace(string(heading.Text(src))); title != "" {
			return title
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// splitFrontMatter separates a leading yaml block delimited by --- lines.
func splitFrontMatter(content string) (map[string]interface{}, string, error) {
	normalized := strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(normalized, "---\n") && !strings.HasPrefix(normalized, "---\r\n") {
		return nil, content, nil
	}
	rest := normalized[strings.Index(normalized, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, content, nil
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	front := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(block), &front); err != nil {
		return nil, content, err
	}
	return front, body, nil
}
