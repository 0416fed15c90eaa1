// Package extraction implements the multi-pass LLM extraction pipeline:
// extraction, derived metrics, and validation stages run under a bounded
// retry policy, orchestrated by a score-gated rerun controller.
package extraction

import (
	"time"

	"github.com/google/uuid"
)

// Stage names, also used as scratch-file suffixes and persisted keys
const (
	StageExtraction     = "extraction"
	StageDerivedMetrics = "derived_metrics"
	StageValidation     = "validation"
)

// ParseErrorKey marks a StageResult whose raw text could not be parsed.
// A parsed mapping either is well-formed model output or carries this key;
// it is never silently empty.
const ParseErrorKey = "error"

// ArtifactKind selects the extraction prompt and reference schemas
type ArtifactKind string

const (
	// KindResume extracts from an uploaded resume file
	KindResume ArtifactKind = "resume"
	// KindJob extracts from job-posting text
	KindJob ArtifactKind = "job"
)

// StageResult is the output of one model-invoking stage
type StageResult struct {
	Stage   string         `json:"stage"`
	Attempt int            `json:"attempt"`
	RawText string         `json:"raw_text"`
	Parsed  map[string]any `json:"parsed"`
}

// Failed reports whether the result carries an explicit error marker
func (r StageResult) Failed() bool {
	if r.RawText == "" {
		return true
	}
	_, hasErr := r.Parsed[ParseErrorKey]
	return hasErr
}

// Attempt is one full extraction → metrics → validation pass
type Attempt struct {
	Index           int                    `json:"index"`
	Results         map[string]StageResult `json:"results"`
	ValidationScore float64                `json:"validation_score"`
	ValidationFlags []string               `json:"validation_flags,omitempty"`
}

// EmbeddingMetadata records how an embedding was produced
type EmbeddingMetadata struct {
	Model       string    `json:"model"`
	TaskType    string    `json:"task_type"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AcceptedRecord is the final unit handed to the persistence gateway,
// produced once per artifact when the rerun loop exits by acceptance or
// by exhausting reruns.
type AcceptedRecord struct {
	FileIdentifier  string                 `json:"file_identifier"`
	RunID           uuid.UUID              `json:"run_id"`
	Kind            ArtifactKind           `json:"kind"`
	Timestamp       time.Time              `json:"timestamp"`
	Responses       map[string]StageResult `json:"responses"`
	ValidationScore float64                `json:"validation_score"`
	Accepted        bool                   `json:"accepted"`
	AttemptsUsed    int                    `json:"attempts_used"`
	Embedding       []float32              `json:"embedding,omitempty"`
	EmbeddingMeta   *EmbeddingMetadata     `json:"embedding_metadata,omitempty"`
}

// Options bound the pipeline's retry and rerun behavior
type Options struct {
	// MaxRetries is the number of times a single stage call is retried
	// after its first failure
	MaxRetries int
	// MaxReruns bounds additional extraction→metrics→validation passes
	// after attempt 0
	MaxReruns int
	// ScoreThreshold is the validation score accepting an attempt
	ScoreThreshold float64
	// EmbeddingCharBudget caps the text projection sent for embedding
	EmbeddingCharBudget int
	// RetryBaseDelay is the base for exponential backoff between stage
	// retries; zero disables sleeping (used in tests)
	RetryBaseDelay time.Duration
	Verbose        bool
}

// DefaultOptions returns the production pipeline bounds
func DefaultOptions() Options {
	return Options{
		MaxRetries:          2,
		MaxReruns:           2,
		ScoreThreshold:      7.0,
		EmbeddingCharBudget: 8000,
		RetryBaseDelay:      500 * time.Millisecond,
	}
}
