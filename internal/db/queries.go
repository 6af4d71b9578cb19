package db

import (
	"context"
	"fmt"
	"time"

	"github.com/dream-ai/paperqa/internal/domain"
)

// RecordIngestion appends the outcome of one ingestion to the journal
func (db *DB) RecordIngestion(ctx context.Context, rec domain.IngestionRecord) error {
	_, err := db.conn.Exec(ctx,
		`INSERT INTO ingestions
		   (document_id, name, file_hash, pages, chunks, embedding_model, state, error_kind, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.DocumentID, rec.Name, rec.Hash, rec.Pages, rec.Chunks,
		rec.EmbeddingModel, rec.State, rec.ErrorKind, rec.Duration.Milliseconds(), db.clock(),
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion: %w", err)
	}
	return nil
}

// ListIngestions returns the most recent journal entries, newest first
func (db *DB) ListIngestions(ctx context.Context, limit int) ([]*Ingestion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(ctx,
		`SELECT id, document_id, name, file_hash, pages, chunks, embedding_model, state, error_kind, duration_ms, created_at
		 FROM ingestions ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestions: %w", err)
	}
	defer rows.Close()

	var out []*Ingestion
	for rows.Next() {
		var (
			ing        Ingestion
			durationMS int64
		)
		if err := rows.Scan(
			&ing.ID, &ing.DocumentID, &ing.Name, &ing.FileHash, &ing.Pages, &ing.Chunks,
			&ing.EmbeddingModel, &ing.State, &ing.ErrorKind, &durationMS, &ing.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion: %w", err)
		}
		ing.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &ing)
	}
	return out, rows.Err()
}
