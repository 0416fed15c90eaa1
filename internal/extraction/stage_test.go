package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-pipeline/internal/llm"
)

func TestParseStageOutput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantErr bool
	}{
		{
			name:    "plain json",
			raw:     `{"title": "Engineer"}`,
			wantKey: "title",
		},
		{
			name:    "fenced json block",
			raw:     "```json\n{\"title\": \"Engineer\"}\n```",
			wantKey: "title",
		},
		{
			name:    "malformed json",
			raw:     `{"title": `,
			wantErr: true,
		},
		{
			name:    "json null",
			raw:     `null`,
			wantErr: true,
		},
		{
			name:    "model error response passes through",
			raw:     `{"error": "not_a_resume"}`,
			wantKey: ParseErrorKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := parseStageOutput(tt.raw)
			require.NotNil(t, parsed, "parsed mapping is never nil")
			if tt.wantErr {
				assert.Contains(t, parsed, ParseErrorKey)
				return
			}
			assert.Contains(t, parsed, tt.wantKey)
		})
	}
}

func TestRunStage_ParseFailureRetried(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{text: `{"broken`},
		{text: `{"title": "Engineer"}`},
	}}
	p := newTestPipeline(t, client, testOptions())

	result, err := p.runStage(context.Background(), StageExtraction, "prompt", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, "Engineer", result.Parsed["title"])
	assert.False(t, result.Failed())
}

func TestRunStage_ExhaustedReturnsLastResult(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{text: `{"error": "refused"}`},
		{text: `{"error": "refused"}`},
		{text: `{"error": "refused"}`},
	}}
	p := newTestPipeline(t, client, testOptions())

	result, err := p.runStage(context.Background(), StageExtraction, "prompt", nil, 0)
	require.Error(t, err)

	var stageErr *StageFailedError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageExtraction, stageErr.Stage)
	assert.Equal(t, 3, stageErr.Attempts)
	assert.True(t, errors.Is(err, ErrErrorResponse))

	require.NotNil(t, result.Parsed)
	assert.True(t, result.Failed())
}

func TestRunStage_ContextCancellationStopsRetries(t *testing.T) {
	opts := testOptions()
	opts.RetryBaseDelay = 50 // nanoseconds are enough to hit the select
	client := &fakeClient{responses: []fakeResponse{
		{text: ""}, {text: ""}, {text: ""},
	}}
	p := newTestPipeline(t, client, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.runStage(ctx, StageExtraction, "prompt", nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, client.calls, "no retry after cancellation")
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, llm.TierAdvanced, tierFor(StageValidation))
	assert.Equal(t, llm.TierStandard, tierFor(StageExtraction))
	assert.Equal(t, llm.TierStandard, tierFor(StageDerivedMetrics))
}

func TestStageResultFailed(t *testing.T) {
	ok := StageResult{RawText: `{"a":1}`, Parsed: map[string]any{"a": 1.0}}
	assert.False(t, ok.Failed())

	empty := StageResult{Parsed: map[string]any{}}
	assert.True(t, empty.Failed())

	errored := StageResult{RawText: "x", Parsed: map[string]any{ParseErrorKey: "bad"}}
	assert.True(t, errored.Failed())
}
