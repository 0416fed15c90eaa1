// Package matching pairs a resume against stored job extractions: a
// cosine similarity gate first, then LLM validation of the survivors,
// fanned out over a bounded worker pool.
package matching

import (
	"context"

	"github.com/jonathan/resume-pipeline/internal/db"
)

// Options bound a matching run
type Options struct {
	// Cycle scopes both the job listing and the already-processed
	// exclusion set
	Cycle string
	// Industry optionally narrows the job listing
	Industry string
	// SimilarityThreshold gates which pairs reach LLM validation
	SimilarityThreshold float64
	// ScoreThreshold is the LLM match score accepting a pair
	ScoreThreshold float64
	// MaxConcurrent bounds the validation worker pool
	MaxConcurrent int
	// MaxRetries bounds retries of a single validation call
	MaxRetries int
	Verbose    bool
}

// DefaultOptions returns the production matching bounds
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.75,
		ScoreThreshold:      7.0,
		MaxConcurrent:       4,
		MaxRetries:          2,
	}
}

// Store is the database surface a matching run needs. *db.DB satisfies it.
type Store interface {
	GetExtraction(ctx context.Context, fileIdentifier string) (*db.ExtractionRow, error)
	ListJobs(ctx context.Context, filter db.JobFilter) ([]db.ExtractionRow, error)
	ProcessedJobIDs(ctx context.Context, cycle, resumeIdentifier string) (map[string]bool, error)
	SaveMatch(ctx context.Context, match db.MatchRow) error
}

// Summary tallies one matching run
type Summary struct {
	Considered int
	Skipped    int
	Matched    int
	Unmatched  int
	Failed     int
}
