package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
)

type SearchRepo struct {
	db *sql.DB
}

func NewSearchRepo(db *sql.DB) *SearchRepo {
	return &SearchRepo{db: db}
}

// VectorLiteral encodes v the way the store expects it: `[a,b,...]`.
func VectorLiteral(v []float32) string {
	return pgvector.NewVector(v).String()
}

func (r *SearchRepo) MatchChunks(ctx context.Context, embedding []float32, limit int) ([]model.SearchResult, error) {
	const query = `
		SELECT chunk_id, document_id, content, similarity, metadata, document_title, document_source
		FROM match_chunks($1::vector, $2)
	`
	results := make([]model.SearchResult, 0, limit)
	err := withConn(ctx, r.db, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, VectorLiteral(embedding), limit)
		if err != nil {
			return fmt.Errorf("match_chunks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw searchRow
			if err := rows.Scan(&raw.chunkID, &raw.documentID, &raw.content, &raw.similarity, &raw.metadata, &raw.title, &raw.source); err != nil {
				return fmt.Errorf("scan match_chunks row: %w", err)
			}
			item, err := raw.decode()
			if err != nil {
				return err
			}
			results = append(results, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *SearchRepo) HybridSearch(ctx context.Context, embedding []float32, text string, limit int, textWeight float64) ([]model.HybridResult, error) {
	const query = `
		SELECT chunk_id, document_id, content, combined_score, vector_similarity, text_similarity,
			metadata, document_title, document_source
		FROM hybrid_search($1::vector, $2, $3, $4)
	`
	results := make([]model.HybridResult, 0, limit)
	err := withConn(ctx, r.db, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, VectorLiteral(embedding), text, limit, textWeight)
		if err != nil {
			return fmt.Errorf("hybrid_search: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw hybridRow
			if err := rows.Scan(&raw.chunkID, &raw.documentID, &raw.content, &raw.combined, &raw.vector, &raw.text,
				&raw.metadata, &raw.title, &raw.source); err != nil {
				return fmt.Errorf("scan hybrid_search row: %w", err)
			}
			item, err := raw.decode()
			if err != nil {
				return err
			}
			results = append(results, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

type searchRow struct {
	chunkID    sql.NullString
	documentID sql.NullString
	content    sql.NullString
	similarity sql.NullFloat64
	metadata   []byte
	title      sql.NullString
	source     sql.NullString
}

func (r searchRow) decode() (model.SearchResult, error) {
	if err := requireFields(map[string]bool{
		"chunk_id":        r.chunkID.Valid,
		"document_id":     r.documentID.Valid,
		"content":         r.content.Valid,
		"similarity":      r.similarity.Valid,
		"document_title":  r.title.Valid,
		"document_source": r.source.Valid,
	}); err != nil {
		return model.SearchResult{}, err
	}
	meta, err := decodeMetadata(r.metadata)
	if err != nil {
		return model.SearchResult{}, err
	}
	return model.SearchResult{
		ChunkID:        r.chunkID.String,
		DocumentID:     r.documentID.String,
		Content:        r.content.String,
		Similarity:     r.similarity.Float64,
		Metadata:       meta,
		DocumentTitle:  r.title.String,
		DocumentSource: r.source.String,
	}, nil
}

type hybridRow struct {
	chunkID    sql.NullString
	documentID sql.NullString
	content    sql.NullString
	combined   sql.NullFloat64
	vector     sql.NullFloat64
	text       sql.NullFloat64
	metadata   []byte
	title      sql.NullString
	source     sql.NullString
}

func (r hybridRow) decode() (model.HybridResult, error) {
	if err := requireFields(map[string]bool{
		"chunk_id":          r.chunkID.Valid,
		"document_id":       r.documentID.Valid,
		"content":           r.content.Valid,
		"combined_score":    r.combined.Valid,
		"vector_similarity": r.vector.Valid,
		"text_similarity":   r.text.Valid,
		"document_title":    r.title.Valid,
		"document_source":   r.source.Valid,
	}); err != nil {
		return model.HybridResult{}, err
	}
	meta, err := decodeMetadata(r.metadata)
	if err != nil {
		return model.HybridResult{}, err
	}
	return model.HybridResult{
		ChunkID:          r.chunkID.String,
		DocumentID:       r.documentID.String,
		Content:          r.content.String,
		CombinedScore:    r.combined.Float64,
		VectorSimilarity: r.vector.Float64,
		TextSimilarity:   r.text.Float64,
		Metadata:         meta,
		DocumentTitle:    r.title.String,
		DocumentSource:   r.source.String,
	}, nil
}

func requireFields(valid map[string]bool) error {
	for _, name := range []string{
		"chunk_id", "document_id", "content", "similarity", "combined_score",
		"vector_similarity", "text_similarity", "document_title", "document_source",
	} {
		ok, present := valid[name]
		if present && !ok {
			return fmt.Errorf("column %s is null: %w", name, appErr.ErrMalformedRow)
		}
	}
	return nil
}

func decodeMetadata(raw []byte) (map[string]interface{}, error) {
	meta := map[string]interface{}{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %v: %w", err, appErr.ErrMalformedRow)
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta, nil
}
