package model

type Document struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Source      string                 `json:"source"`
	Content     string                 `json:"content"`
	ContentHash string                 `json:"content_hash"`
	Metadata    map[string]interface{} `json:"metadata"`
	Ctime       int64                  `json:"ctime"`
}

type IngestionResult struct {
	DocumentID       string   `json:"document_id"`
	Title            string   `json:"title"`
	Source           string   `json:"source"`
	ChunksCreated    int      `json:"chunks_created"`
	ProcessingTimeMs float64  `json:"processing_time_ms"`
	Skipped          bool     `json:"skipped,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

func (r *IngestionResult) Failed() bool {
	return len(r.Errors) > 0
}
