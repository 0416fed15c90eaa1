package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resume-pipeline/internal/extraction"
)

// UpsertExtraction stores an accepted record, replacing any prior row for
// the same file identifier. The record's stage responses are stored as one
// JSONB document.
func (db *DB) UpsertExtraction(ctx context.Context, record *extraction.AcceptedRecord, cycle, industry string) error {
	responses, err := json.Marshal(record.Responses)
	if err != nil {
		return fmt.Errorf("failed to marshal stage responses: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO extractions (file_identifier, kind, run_id, cycle, industry,
		                          responses, validation_score, accepted, attempts_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (file_identifier) DO UPDATE SET
		     kind = $2, run_id = $3, cycle = $4, industry = $5, responses = $6,
		     validation_score = $7, accepted = $8, attempts_used = $9,
		     updated_at = NOW()`,
		record.FileIdentifier, string(record.Kind), record.RunID, cycle, industry,
		responses, record.ValidationScore, record.Accepted, record.AttemptsUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert extraction %s: %w", record.FileIdentifier, err)
	}
	return nil
}

// AddEmbedding attaches an embedding vector and its metadata to an
// existing extraction row
func (db *DB) AddEmbedding(ctx context.Context, fileIdentifier string, vector []float32, meta *extraction.EmbeddingMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding metadata: %w", err)
	}

	result, err := db.pool.Exec(ctx,
		`UPDATE extractions
		 SET embedding = $1, embedding_metadata = $2, updated_at = NOW()
		 WHERE file_identifier = $3`,
		vector, metaJSON, fileIdentifier,
	)
	if err != nil {
		return fmt.Errorf("failed to add embedding for %s: %w", fileIdentifier, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no extraction row for %s", fileIdentifier)
	}
	return nil
}

// GetExtraction retrieves an extraction row by file identifier.
// Returns nil with no error when the row does not exist.
func (db *DB) GetExtraction(ctx context.Context, fileIdentifier string) (*ExtractionRow, error) {
	var row ExtractionRow
	err := db.pool.QueryRow(ctx,
		`SELECT id, file_identifier, kind, run_id, cycle, industry, responses,
		        validation_score, accepted, attempts_used, embedding, created_at, updated_at
		 FROM extractions WHERE file_identifier = $1`,
		fileIdentifier,
	).Scan(&row.ID, &row.FileIdentifier, &row.Kind, &row.RunID, &row.Cycle,
		&row.Industry, &row.Responses, &row.ValidationScore, &row.Accepted,
		&row.AttemptsUsed, &row.Embedding, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get extraction %s: %w", fileIdentifier, err)
	}
	return &row, nil
}

// HasExtraction reports whether a row already exists for the identifier
func (db *DB) HasExtraction(ctx context.Context, fileIdentifier string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM extractions WHERE file_identifier = $1)`,
		fileIdentifier,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check extraction %s: %w", fileIdentifier, err)
	}
	return exists, nil
}

// ListJobs retrieves job extraction rows matching the filter. Only
// accepted rows with an embedding participate in matching.
func (db *DB) ListJobs(ctx context.Context, filter JobFilter) ([]ExtractionRow, error) {
	if filter.Limit == 0 {
		filter.Limit = 200
	}

	query := `SELECT id, file_identifier, kind, run_id, cycle, industry, responses,
	                 validation_score, accepted, attempts_used, embedding, created_at, updated_at
	          FROM extractions
	          WHERE kind = 'job' AND embedding IS NOT NULL`
	args := []any{}
	argNum := 1

	if filter.Cycle != "" {
		query += fmt.Sprintf(" AND cycle = $%d", argNum)
		args = append(args, filter.Cycle)
		argNum++
	}
	if filter.Industry != "" {
		query += fmt.Sprintf(" AND industry = $%d", argNum)
		args = append(args, filter.Industry)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d", argNum)
	args = append(args, filter.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ExtractionRow
	for rows.Next() {
		var row ExtractionRow
		if err := rows.Scan(&row.ID, &row.FileIdentifier, &row.Kind, &row.RunID,
			&row.Cycle, &row.Industry, &row.Responses, &row.ValidationScore,
			&row.Accepted, &row.AttemptsUsed, &row.Embedding, &row.CreatedAt,
			&row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, row)
	}
	return jobs, nil
}

// CountMissingEmbeddings reports how many accepted rows lack an embedding.
// These are candidates for a backfill pass.
func (db *DB) CountMissingEmbeddings(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM extractions WHERE accepted AND embedding IS NULL`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count missing embeddings: %w", err)
	}
	return count, nil
}
