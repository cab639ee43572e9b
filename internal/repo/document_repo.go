package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragsearch/internal/model"
	"github.com/xxxsen/ragsearch/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Save stores doc and its chunks in one transaction, replacing any document
// previously ingested from the same source. It returns the new document id.
func (r *DocumentRepo) Save(ctx context.Context, doc *model.Document, chunks []*model.Chunk) (string, error) {
	var id string
	err := withConn(ctx, r.db, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE source = $1", doc.Source); err != nil {
			return fmt.Errorf("delete previous document: %w", err)
		}
		id, err = insertDocument(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := insertChunks(ctx, tx, id, chunks); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	doc.ID = id
	return id, nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *model.Document) (string, error) {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return "", err
	}
	data := map[string]interface{}{
		"title":        doc.Title,
		"source":       doc.Source,
		"content":      doc.Content,
		"content_hash": doc.ContentHash,
		"metadata":     meta,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return "", err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	var id string
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// chunkInsertBatch keeps one INSERT well below postgres's 65535 bind
// parameter limit (6 columns per row).
const chunkInsertBatch = 1000

func insertChunks(ctx context.Context, tx *sql.Tx, documentID string, chunks []*model.Chunk) error {
	for start := 0; start < len(chunks); start += chunkInsertBatch {
		rows, err := chunkRows(documentID, chunks[start:min(start+chunkInsertBatch, len(chunks))])
		if err != nil {
			return err
		}
		sqlStr, args, err := builder.BuildInsert("chunks", rows)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}
	return nil
}

func chunkRows(documentID string, chunks []*model.Chunk) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0, len(chunks))
	for _, ch := range chunks {
		meta, err := encodeMetadata(ch.Metadata)
		if err != nil {
			return nil, err
		}
		rows = append(rows, map[string]interface{}{
			"document_id": documentID,
			"content":     ch.Content,
			"embedding":   storedEmbedding(ch.Embedding),
			"chunk_index": ch.Index,
			"metadata":    meta,
			"token_count": ch.TokenCount,
		})
	}
	return rows, nil
}

// storedEmbedding returns nil for missing or all-zero vectors. A zero vector
// has no cosine distance, so such chunks are kept out of vector ranking.
func storedEmbedding(vec []float32) interface{} {
	for _, v := range vec {
		if v != 0 {
			return pgvector.NewVector(vec)
		}
	}
	return nil
}

func (r *DocumentRepo) FindBySource(ctx context.Context, source string) (*model.Document, error) {
	where := map[string]interface{}{"source": source}
	sqlStr, args, err := builder.BuildSelect("documents", where, []string{"id", "title", "source", "content_hash", "metadata", "created_at"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var (
		doc     model.Document
		rawMeta []byte
		created sql.NullTime
	)
	err = withConn(ctx, r.db, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, sqlStr, args...).Scan(&doc.ID, &doc.Title, &doc.Source, &doc.ContentHash, &rawMeta, &created)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Metadata, err = decodeMetadata(rawMeta)
	if err != nil {
		return nil, err
	}
	if created.Valid {
		doc.Ctime = created.Time.Unix()
	}
	return &doc, nil
}

// DeleteAll removes every document; chunks go with them.
func (r *DocumentRepo) DeleteAll(ctx context.Context) (int64, error) {
	var affected int64
	err := withConn(ctx, r.db, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, "DELETE FROM documents")
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (r *DocumentRepo) Counts(ctx context.Context) (documents int64, chunks int64, err error) {
	err = withConn(ctx, r.db, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)").Scan(&documents, &chunks)
	})
	return documents, chunks, err
}

func encodeMetadata(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}
