package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/extraction"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/prompts"
)

// Matcher runs resume-to-job matching against stored extractions
type Matcher struct {
	client  llm.Client
	store   Store
	printer *observability.Printer
	opts    Options
}

// New creates a matcher with the given collaborators
func New(client llm.Client, store Store, printer *observability.Printer, opts Options) *Matcher {
	return &Matcher{client: client, store: store, printer: printer, opts: opts}
}

// Match pairs one resume against every eligible job in the cycle.
// Jobs already decided for this resume in this cycle are excluded; a job
// decided in a different cycle is still eligible. Pairs below the
// similarity threshold are recorded unmatched without an LLM call.
func (m *Matcher) Match(ctx context.Context, resumeIdentifier string) (Summary, error) {
	var summary Summary

	resume, err := m.store.GetExtraction(ctx, resumeIdentifier)
	if err != nil {
		return summary, err
	}
	if resume == nil {
		return summary, fmt.Errorf("no extraction record for resume %s", resumeIdentifier)
	}
	if resume.Kind != string(extraction.KindResume) {
		return summary, fmt.Errorf("%s is a %s record, not a resume", resumeIdentifier, resume.Kind)
	}
	if len(resume.Embedding) == 0 {
		return summary, fmt.Errorf("resume %s has no embedding; rerun extraction first", resumeIdentifier)
	}

	resumeJSON, err := extractionJSON(resume)
	if err != nil {
		return summary, err
	}

	jobs, err := m.store.ListJobs(ctx, db.JobFilter{Cycle: m.opts.Cycle, Industry: m.opts.Industry})
	if err != nil {
		return summary, err
	}

	processed, err := m.store.ProcessedJobIDs(ctx, m.opts.Cycle, resumeIdentifier)
	if err != nil {
		return summary, err
	}

	fmt.Printf("Matching %s against %d jobs (cycle %s, %d already processed)...\n",
		resumeIdentifier, len(jobs), m.opts.Cycle, len(processed))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MaxConcurrent)

	for _, job := range jobs {
		if processed[job.FileIdentifier] {
			summary.Skipped++
			continue
		}
		summary.Considered++

		job := job
		g.Go(func() error {
			outcome, err := m.decide(gctx, resume, resumeJSON, &job)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				fmt.Printf("  Warning: could not decide %s: %v\n", job.FileIdentifier, err)
			case outcome == db.StatusMatched:
				summary.Matched++
			default:
				summary.Unmatched++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	fmt.Printf("Done: %d matched, %d unmatched, %d skipped, %d failed\n",
		summary.Matched, summary.Unmatched, summary.Skipped, summary.Failed)
	return summary, nil
}

// decide runs the similarity gate and, for survivors, LLM validation,
// then persists the outcome
func (m *Matcher) decide(ctx context.Context, resume *db.ExtractionRow, resumeJSON string, job *db.ExtractionRow) (db.MatchStatus, error) {
	similarity, err := Cosine(resume.Embedding, job.Embedding)
	if err != nil {
		return "", fmt.Errorf("similarity for %s: %w", job.FileIdentifier, err)
	}

	match := db.MatchRow{
		Cycle:            m.opts.Cycle,
		ResumeIdentifier: resume.FileIdentifier,
		JobIdentifier:    job.FileIdentifier,
		Similarity:       similarity,
		Status:           db.StatusUnmatched,
	}

	if similarity >= m.opts.SimilarityThreshold {
		jobJSON, err := extractionJSON(job)
		if err != nil {
			return "", err
		}
		score, reason, err := m.validate(ctx, resumeJSON, jobJSON, similarity)
		if err != nil {
			// Not persisted: a later run should retry this pair.
			return "", err
		}
		match.MatchScore = &score
		match.MatchReason = reason
		if score >= m.opts.ScoreThreshold {
			match.Status = db.StatusMatched
		}
	}

	if m.opts.Verbose && m.printer != nil {
		m.printer.PrintMatchDecision(resume.FileIdentifier, job.FileIdentifier,
			similarity, match.MatchScore, string(match.Status))
	}

	if err := m.store.SaveMatch(ctx, match); err != nil {
		return "", err
	}
	return match.Status, nil
}

// validate asks the model to judge a resume/job pair under the bounded
// retry policy
func (m *Matcher) validate(ctx context.Context, resumeJSON, jobJSON string, similarity float64) (float64, string, error) {
	prompt := prompts.Format(prompts.MustGet("matching.json", "validate-match"), map[string]string{
		"ResumeJSON": resumeJSON,
		"JobJSON":    jobJSON,
		"Similarity": fmt.Sprintf("%.3f", similarity),
	})

	var lastErr error
	for call := 0; call <= m.opts.MaxRetries; call++ {
		raw, err := m.client.GenerateJSON(ctx, prompt, nil, llm.TierLite)
		if err != nil {
			lastErr = err
			continue
		}

		var parsed struct {
			MatchScore  json.Number `json:"match_score"`
			MatchReason string      `json:"match_reason"`
		}
		if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &parsed); err != nil {
			lastErr = fmt.Errorf("unparseable validation output: %w", err)
			continue
		}
		score, err := strconv.ParseFloat(parsed.MatchScore.String(), 64)
		if err != nil {
			lastErr = fmt.Errorf("malformed match score %q", parsed.MatchScore)
			continue
		}
		return score, parsed.MatchReason, nil
	}
	return 0, "", fmt.Errorf("match validation failed after %d calls: %w", m.opts.MaxRetries+1, lastErr)
}

// extractionJSON pulls the extraction stage's raw output from a stored row
func extractionJSON(row *db.ExtractionRow) (string, error) {
	var responses map[string]extraction.StageResult
	if err := json.Unmarshal(row.Responses, &responses); err != nil {
		return "", fmt.Errorf("corrupt responses for %s: %w", row.FileIdentifier, err)
	}
	result, ok := responses[extraction.StageExtraction]
	if !ok || result.RawText == "" {
		return "", fmt.Errorf("no extraction output stored for %s", row.FileIdentifier)
	}
	return result.RawText, nil
}
