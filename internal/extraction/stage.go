package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/resume-pipeline/internal/llm"
)

// runStage invokes the model for one stage under the bounded retry policy.
// A call is retried on empty output, unparseable output, or output carrying
// an explicit error key. The returned StageResult always has a non-nil
// Parsed mapping; on total failure a StageFailedError accompanies the last
// result.
func (p *Pipeline) runStage(ctx context.Context, stage, prompt string, file *llm.FileHandle, attemptIndex int) (StageResult, error) {
	result := StageResult{
		Stage:   stage,
		Attempt: attemptIndex,
		Parsed:  map[string]any{ParseErrorKey: "no response"},
	}

	var lastErr error
	maxCalls := p.opts.MaxRetries + 1
	for call := 0; call < maxCalls; call++ {
		if call > 0 {
			if err := p.backoff(ctx, call); err != nil {
				return result, &StageFailedError{Stage: stage, Attempts: call, Cause: err}
			}
			if p.opts.Verbose {
				fmt.Printf("[VERBOSE] Retrying stage %s (retry %d/%d)\n", stage, call, p.opts.MaxRetries)
			}
		}

		raw, err := p.client.GenerateJSON(ctx, prompt, file, tierFor(stage))
		if err != nil {
			lastErr = err
			continue
		}
		if raw == "" {
			lastErr = ErrEmptyResponse
			continue
		}

		result.RawText = raw
		result.Parsed = parseStageOutput(raw)

		if errMsg, hasErr := result.Parsed[ParseErrorKey]; hasErr {
			lastErr = fmt.Errorf("%w: %v", ErrErrorResponse, errMsg)
			continue
		}

		return result, nil
	}

	return result, &StageFailedError{Stage: stage, Attempts: maxCalls, Cause: lastErr}
}

// parseStageOutput parses model output into a mapping. Parse failures are
// recorded under ParseErrorKey rather than returned as nil.
func parseStageOutput(raw string) map[string]any {
	cleaned := llm.CleanJSONBlock(raw)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return map[string]any{ParseErrorKey: fmt.Sprintf("parse_failure: %v", err)}
	}
	if parsed == nil {
		return map[string]any{ParseErrorKey: "parse_failure: null output"}
	}
	return parsed
}

// tierFor maps stages to model tiers: validation cross-checks two prior
// outputs and gets the advanced tier, the generation stages use standard.
func tierFor(stage string) llm.ModelTier {
	if stage == StageValidation {
		return llm.TierAdvanced
	}
	return llm.TierStandard
}

// backoff sleeps for the bounded exponential retry delay, honoring
// context cancellation
func (p *Pipeline) backoff(ctx context.Context, retry int) error {
	if p.opts.RetryBaseDelay <= 0 {
		return nil
	}
	delay := p.opts.RetryBaseDelay * time.Duration(1<<(retry-1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// writeScratch records stage raw text in the scratch directory for audit.
// Best effort: failures are logged, never propagated.
func (p *Pipeline) writeScratch(identifier, stage, raw string) {
	if p.scratch == nil || raw == "" {
		return
	}
	if err := p.scratch.WriteStageOutput(identifier, stage, raw); err != nil {
		log.Printf("Warning: failed to write scratch output for %s/%s: %v", identifier, stage, err)
	}
}
