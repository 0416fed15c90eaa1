package extraction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-pipeline/internal/ingestion"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/prompts"
	"github.com/jonathan/resume-pipeline/internal/scratch"
	"github.com/jonathan/resume-pipeline/internal/schemas"
)

// runState tracks the rerun controller's position
type runState int

const (
	stateRunning runState = iota
	stateAccepted
	stateAborted
	stateExhausted
)

// Pipeline runs the staged extraction process for one artifact at a time.
// Collaborators are injected at construction; the caller owns their
// lifecycle.
type Pipeline struct {
	client  llm.Client
	scratch *scratch.Dir
	opts    Options
}

// New creates a pipeline with the given collaborators
func New(client llm.Client, scratchDir *scratch.Dir, opts Options) *Pipeline {
	return &Pipeline{client: client, scratch: scratchDir, opts: opts}
}

// Run executes the rerun loop for one artifact and returns the candidate
// record to persist. A nil record with a non-nil error means the artifact
// was aborted (extraction or metrics failed); the caller moves on to the
// next artifact.
//
// Policy: the rerun loop keeps the most recent attempt's results as the
// candidate regardless of earlier scores: last attempt wins.
func (p *Pipeline) Run(ctx context.Context, artifact *ingestion.SourceArtifact, kind ArtifactKind) (*AcceptedRecord, error) {
	state := stateRunning
	var last Attempt

	for i := 0; state == stateRunning; i++ {
		fmt.Printf("Processing %s: attempt %d/%d...\n", artifact.Identifier, i+1, p.opts.MaxReruns+1)

		attempt, err := p.runAttempt(ctx, artifact, kind, i)
		if err != nil {
			state = stateAborted
			return nil, fmt.Errorf("artifact %s aborted at attempt %d: %w", artifact.Identifier, i, err)
		}

		// Last attempt wins: the candidate is overwritten unconditionally
		last = attempt

		switch {
		case attempt.ValidationScore >= p.opts.ScoreThreshold:
			state = stateAccepted
			fmt.Printf("  ✅ Accepted: validation score %.1f (threshold %.1f)\n",
				attempt.ValidationScore, p.opts.ScoreThreshold)
		case i+1 > p.opts.MaxReruns:
			state = stateExhausted
			fmt.Printf("  ⚠️ Reruns exhausted: keeping last attempt (score %.1f below threshold %.1f)\n",
				attempt.ValidationScore, p.opts.ScoreThreshold)
		default:
			fmt.Printf("  Score %.1f below threshold %.1f, rerunning...\n",
				attempt.ValidationScore, p.opts.ScoreThreshold)
		}
	}

	record := &AcceptedRecord{
		FileIdentifier:  artifact.Identifier,
		RunID:           uuid.New(),
		Kind:            kind,
		Timestamp:       time.Now().UTC(),
		Responses:       last.Results,
		ValidationScore: last.ValidationScore,
		Accepted:        state == stateAccepted,
		AttemptsUsed:    last.Index + 1,
	}

	// Embedding runs once per accepted result; failure is a degraded
	// state, not a pipeline failure.
	p.embed(ctx, record)

	return record, nil
}

// runAttempt executes one strictly ordered extraction → metrics →
// validation pass
func (p *Pipeline) runAttempt(ctx context.Context, artifact *ingestion.SourceArtifact, kind ArtifactKind, index int) (Attempt, error) {
	attempt := Attempt{Index: index, Results: make(map[string]StageResult)}

	// Stage 1: extraction
	extractPrompt, err := extractionPrompt(artifact, kind)
	if err != nil {
		return attempt, err
	}
	extracted, err := p.runStage(ctx, StageExtraction, extractPrompt, artifact.FileHandle(), index)
	attempt.Results[StageExtraction] = extracted
	if err != nil {
		return attempt, err
	}

	// Stage 2: derived metrics. Precondition: extraction succeeded.
	metricsPrompt := prompts.Format(prompts.MustGet("extraction.json", "derive-metrics"), map[string]string{
		"ExtractionRaw": extracted.RawText,
	})
	if kind == KindJob {
		metricsPrompt = metricsPrompt + "\n\nSource document:\n\"\"\"\n" + artifact.Text + "\n\"\"\"\n"
	}
	metrics, err := p.runStage(ctx, StageDerivedMetrics, metricsPrompt, artifact.FileHandle(), index)
	p.writeScratch(artifact.Identifier, StageDerivedMetrics, metrics.RawText)
	attempt.Results[StageDerivedMetrics] = metrics
	if err != nil {
		return attempt, fmt.Errorf("%w (validation skipped)", err)
	}

	// Structural pre-check of the extraction output against the
	// reference schema; findings are informational flags.
	var structuralFlags []string
	if schemaErr := schemas.ValidateAgainst(referenceSchemaFor(kind), extracted.RawText); schemaErr != nil {
		var ve *schemas.ValidationError
		if errors.As(schemaErr, &ve) {
			for _, fe := range ve.Errors {
				structuralFlags = append(structuralFlags, fmt.Sprintf("schema %s: %s", fe.Field, fe.Message))
			}
		}
	}

	// Stage 3: validation cross-check
	validatePrompt := prompts.Format(prompts.MustGet("extraction.json", "validate-outputs"), map[string]string{
		"SchemaTexts":   schemaTextsFor(kind),
		"ExtractionRaw": extracted.RawText,
		"MetricsRaw":    metrics.RawText,
	})
	validated, err := p.runStage(ctx, StageValidation, validatePrompt, nil, index)
	p.writeScratch(artifact.Identifier, StageValidation, validated.RawText)
	attempt.Results[StageValidation] = validated
	if err != nil {
		// A failed validation pass scores the attempt 0 rather than
		// aborting: the rerun loop decides what happens next.
		fmt.Printf("  Warning: validation stage failed, scoring attempt 0: %v\n", err)
		attempt.ValidationScore = 0
		attempt.ValidationFlags = structuralFlags
		return attempt, nil
	}

	attempt.ValidationScore = scoreFrom(validated.Parsed)
	attempt.ValidationFlags = append(structuralFlags, flagsFrom(validated.Parsed)...)
	if p.opts.Verbose && len(attempt.ValidationFlags) > 0 {
		fmt.Printf("[VERBOSE] Validation flags: %v\n", attempt.ValidationFlags)
	}

	return attempt, nil
}

// extractionPrompt builds the stage-1 prompt for the artifact kind
func extractionPrompt(artifact *ingestion.SourceArtifact, kind ArtifactKind) (string, error) {
	switch kind {
	case KindResume:
		if artifact.FileHandle() == nil {
			return "", &StageSkippedError{Stage: StageExtraction, Reason: "resume artifact has no uploaded file"}
		}
		return prompts.MustGet("extraction.json", "extract-resume"), nil
	case KindJob:
		if artifact.Text == "" {
			return "", &StageSkippedError{Stage: StageExtraction, Reason: "job artifact has no text"}
		}
		return prompts.Format(prompts.MustGet("extraction.json", "extract-job"), map[string]string{
			"JobText": artifact.Text,
		}), nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}

func referenceSchemaFor(kind ArtifactKind) string {
	if kind == KindJob {
		return schemas.JobExtraction
	}
	return schemas.ResumeExtraction
}

func schemaTextsFor(kind ArtifactKind) string {
	return schemas.MustReferenceText(referenceSchemaFor(kind)) + "\n\n" +
		schemas.MustReferenceText(schemas.DerivedMetrics)
}

// scoreFrom coerces the validation score out of parsed output,
// defaulting to 0 on missing or malformed values
func scoreFrom(parsed map[string]any) float64 {
	raw, ok := parsed["validation_score"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

// flagsFrom collects validation flags; informational only
func flagsFrom(parsed map[string]any) []string {
	raw, ok := parsed["validation_flags"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	flags := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			flags = append(flags, s)
		}
	}
	return flags
}
