package db

import (
	"context"
	"fmt"
)

// SaveMatch records a pairing decision, replacing any prior decision for
// the same (cycle, resume, job) triple
func (db *DB) SaveMatch(ctx context.Context, match MatchRow) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO match_results (cycle, resume_identifier, job_identifier,
		                            similarity, match_score, match_reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (cycle, resume_identifier, job_identifier) DO UPDATE SET
		     similarity = $4, match_score = $5, match_reason = $6, status = $7,
		     created_at = NOW()`,
		match.Cycle, match.ResumeIdentifier, match.JobIdentifier,
		match.Similarity, match.MatchScore, nullIfEmpty(match.MatchReason),
		string(match.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save match %s/%s: %w",
			match.ResumeIdentifier, match.JobIdentifier, err)
	}
	return nil
}

// ProcessedJobIDs returns the distinct job identifiers already decided for
// a resume within one cycle. The cycle predicate is part of the query, not
// applied afterwards: a job decided in another cycle must still be
// processed in this one.
func (db *DB) ProcessedJobIDs(ctx context.Context, cycle, resumeIdentifier string) (map[string]bool, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT job_identifier FROM match_results
		 WHERE cycle = $1 AND resume_identifier = $2`,
		cycle, resumeIdentifier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed jobs: %w", err)
	}
	defer rows.Close()

	processed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job identifier: %w", err)
		}
		processed[id] = true
	}
	return processed, nil
}

// ListMatches retrieves the decisions for a resume in a cycle, best first
func (db *DB) ListMatches(ctx context.Context, cycle, resumeIdentifier string) ([]MatchRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, cycle, resume_identifier, job_identifier, similarity,
		        match_score, match_reason, status, created_at
		 FROM match_results
		 WHERE cycle = $1 AND resume_identifier = $2
		 ORDER BY match_score DESC NULLS LAST, similarity DESC`,
		cycle, resumeIdentifier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []MatchRow
	for rows.Next() {
		var m MatchRow
		var reason *string
		if err := rows.Scan(&m.ID, &m.Cycle, &m.ResumeIdentifier, &m.JobIdentifier,
			&m.Similarity, &m.MatchScore, &reason, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		if reason != nil {
			m.MatchReason = *reason
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// nullIfEmpty converts empty strings to nil for nullable columns
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
