package model

type SearchStrategy string

const (
	StrategySemantic SearchStrategy = "semantic"
	StrategyHybrid   SearchStrategy = "hybrid"
)

func (s SearchStrategy) Valid() bool {
	return s == StrategySemantic || s == StrategyHybrid
}

type SearchResult struct {
	ChunkID        string                 `json:"chunk_id"`
	DocumentID     string                 `json:"document_id"`
	Content        string                 `json:"content"`
	Similarity     float64                `json:"similarity"`
	Metadata       map[string]interface{} `json:"metadata"`
	DocumentTitle  string                 `json:"document_title"`
	DocumentSource string                 `json:"document_source"`
}

type HybridResult struct {
	ChunkID          string                 `json:"chunk_id"`
	DocumentID       string                 `json:"document_id"`
	Content          string                 `json:"content"`
	CombinedScore    float64                `json:"combined_score"`
	VectorSimilarity float64                `json:"vector_similarity"`
	TextSimilarity   float64                `json:"text_similarity"`
	Metadata         map[string]interface{} `json:"metadata"`
	DocumentTitle    string                 `json:"document_title"`
	DocumentSource   string                 `json:"document_source"`
}

// AutoSearchResult carries the routed strategy. Exactly one of
// SemanticResults and HybridResults is populated, matching Strategy.
type AutoSearchResult struct {
	Strategy        SearchStrategy `json:"strategy"`
	Reason          string         `json:"reason"`
	TextWeight      *float64       `json:"text_weight,omitempty"`
	SemanticResults []SearchResult `json:"semantic_results,omitempty"`
	HybridResults   []HybridResult `json:"hybrid_results,omitempty"`
}

func (r *AutoSearchResult) Len() int {
	if r == nil {
		return 0
	}
	if r.Strategy == StrategySemantic {
		return len(r.SemanticResults)
	}
	return len(r.HybridResults)
}
