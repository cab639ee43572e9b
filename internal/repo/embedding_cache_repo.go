package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragsearch/internal/model"
)

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	const query = `
		SELECT content_hash, embedding
		FROM embedding_cache
		WHERE model_name = $1 AND content_hash = ANY($2)
	`
	err := withConn(ctx, r.db, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, modelName, pq.Array(hashes))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				hash      string
				embedding pgvector.Vector
			)
			if err := rows.Scan(&hash, &embedding); err != nil {
				return err
			}
			out[hash] = embedding.Slice()
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("read embedding cache: %w", err)
	}
	return out, nil
}

func (r *EmbeddingCacheRepo) SaveMany(ctx context.Context, items []*model.EmbeddingCache) error {
	if len(items) == 0 {
		return nil
	}
	const query = `
		INSERT INTO embedding_cache (model_name, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_name, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	return withConn(ctx, r.db, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, item := range items {
			if _, err := stmt.ExecContext(ctx, item.ModelName, item.ContentHash, pgvector.NewVector(item.Embedding), item.Ctime); err != nil {
				return fmt.Errorf("save embedding cache: %w", err)
			}
		}
		return tx.Commit()
	})
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	var affected int64
	err := withConn(ctx, r.db, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < $1`, cutoff)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
