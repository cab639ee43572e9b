package model

// Chunk is a contiguous span of a source document that is embedded and
// retrieved on its own.
type Chunk struct {
	Content    string                 `json:"content"`
	Index      int                    `json:"index"`
	StartChar  int                    `json:"start_char"`
	EndChar    int                    `json:"end_char"`
	Metadata   map[string]interface{} `json:"metadata"`
	TokenCount int                    `json:"token_count"`
	Embedding  []float32              `json:"embedding,omitempty"`
}

// Embedded reports whether the chunk finished the embedding stage.
func (c *Chunk) Embedded() bool {
	return c != nil && c.Embedding != nil
}
