package db

import (
	"time"

	"github.com/google/uuid"
)

// ExtractionRow is a stored extraction record
type ExtractionRow struct {
	ID              uuid.UUID `json:"id"`
	FileIdentifier  string    `json:"file_identifier"`
	Kind            string    `json:"kind"`
	RunID           uuid.UUID `json:"run_id"`
	Cycle           string    `json:"cycle"`
	Industry        string    `json:"industry"`
	Responses       []byte    `json:"responses"`
	ValidationScore float64   `json:"validation_score"`
	Accepted        bool      `json:"accepted"`
	AttemptsUsed    int       `json:"attempts_used"`
	Embedding       []float32 `json:"embedding,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// JobFilter narrows the job listing query for a matching run
type JobFilter struct {
	Cycle    string
	Industry string
	Limit    int
}

// MatchStatus is the persisted outcome of one resume/job pairing
type MatchStatus string

const (
	StatusMatched   MatchStatus = "matched"
	StatusUnmatched MatchStatus = "unmatched"
)

// MatchRow is a stored match decision
type MatchRow struct {
	ID               uuid.UUID   `json:"id"`
	Cycle            string      `json:"cycle"`
	ResumeIdentifier string      `json:"resume_identifier"`
	JobIdentifier    string      `json:"job_identifier"`
	Similarity       float64     `json:"similarity"`
	MatchScore       *float64    `json:"match_score,omitempty"`
	MatchReason      string      `json:"match_reason,omitempty"`
	Status           MatchStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
}
