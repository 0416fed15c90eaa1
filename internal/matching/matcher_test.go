package matching

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/extraction"
	"github.com/jonathan/resume-pipeline/internal/llm"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]*db.ExtractionRow
	jobs      []db.ExtractionRow
	processed map[string]bool
	saved     []db.MatchRow
	saveErr   error
}

func (f *fakeStore) GetExtraction(_ context.Context, id string) (*db.ExtractionRow, error) {
	return f.rows[id], nil
}

func (f *fakeStore) ListJobs(_ context.Context, _ db.JobFilter) ([]db.ExtractionRow, error) {
	return f.jobs, nil
}

func (f *fakeStore) ProcessedJobIDs(_ context.Context, _, _ string) (map[string]bool, error) {
	if f.processed == nil {
		return map[string]bool{}, nil
	}
	return f.processed, nil
}

func (f *fakeStore) SaveMatch(_ context.Context, match db.MatchRow) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, match)
	return nil
}

func (f *fakeStore) savedFor(jobID string) *db.MatchRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.saved {
		if f.saved[i].JobIdentifier == jobID {
			return &f.saved[i]
		}
	}
	return nil
}

// fakeValidator answers every validate-match call with the same payload
type fakeValidator struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeValidator) GenerateContent(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeValidator) GenerateJSON(_ context.Context, _ string, _ *llm.FileHandle, _ llm.ModelTier) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.text, f.err
}

func (f *fakeValidator) UploadFile(_ context.Context, _, _ string) (*llm.FileHandle, error) {
	return nil, errors.New("not used")
}

func (f *fakeValidator) DeleteFile(_ context.Context, _ *llm.FileHandle) error { return nil }

func (f *fakeValidator) EmbedText(_ context.Context, _ string, _ llm.EmbeddingTask) ([]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeValidator) EmbeddingModel() string { return "fake-embedding" }
func (f *fakeValidator) Close() error           { return nil }

func (f *fakeValidator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func row(id, kind string, embedding []float32) *db.ExtractionRow {
	responses, _ := json.Marshal(map[string]extraction.StageResult{
		extraction.StageExtraction: {
			Stage:   extraction.StageExtraction,
			RawText: `{"title": "` + id + `"}`,
			Parsed:  map[string]any{"title": id},
		},
	})
	return &db.ExtractionRow{
		FileIdentifier: id,
		Kind:           kind,
		Responses:      responses,
		Embedding:      embedding,
		Accepted:       true,
	}
}

func testMatcher(store *fakeStore, client llm.Client, opts Options) *Matcher {
	return New(client, store, nil, opts)
}

func TestMatch_SimilarityGateSkipsLLM(t *testing.T) {
	resume := row("resume-1", "resume", []float32{1, 0})
	// Orthogonal embedding: similarity 0, well below any threshold.
	store := &fakeStore{
		rows: map[string]*db.ExtractionRow{"resume-1": resume},
		jobs: []db.ExtractionRow{*row("job-1", "job", []float32{0, 1})},
	}
	client := &fakeValidator{text: `{"match_score": 9, "match_reason": "great fit"}`}

	opts := DefaultOptions()
	opts.Cycle = "2026-08"
	summary, err := testMatcher(store, client, opts).Match(context.Background(), "resume-1")
	require.NoError(t, err)

	assert.Equal(t, 0, client.callCount(), "below-threshold pairs never reach the model")
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 0, summary.Matched)

	saved := store.savedFor("job-1")
	require.NotNil(t, saved, "the unmatched decision is still persisted")
	assert.Equal(t, db.StatusUnmatched, saved.Status)
	assert.Nil(t, saved.MatchScore)
}

func TestMatch_LLMGateAcceptsHighScore(t *testing.T) {
	resume := row("resume-1", "resume", []float32{1, 1})
	store := &fakeStore{
		rows: map[string]*db.ExtractionRow{"resume-1": resume},
		jobs: []db.ExtractionRow{*row("job-1", "job", []float32{1, 1})},
	}
	client := &fakeValidator{text: `{"match_score": 8.5, "match_reason": "strong overlap"}`}

	opts := DefaultOptions()
	summary, err := testMatcher(store, client, opts).Match(context.Background(), "resume-1")
	require.NoError(t, err)

	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 1, summary.Matched)

	saved := store.savedFor("job-1")
	require.NotNil(t, saved)
	assert.Equal(t, db.StatusMatched, saved.Status)
	require.NotNil(t, saved.MatchScore)
	assert.Equal(t, 8.5, *saved.MatchScore)
	assert.Equal(t, "strong overlap", saved.MatchReason)
}

func TestMatch_LLMGateRejectsLowScore(t *testing.T) {
	resume := row("resume-1", "resume", []float32{1, 1})
	store := &fakeStore{
		rows: map[string]*db.ExtractionRow{"resume-1": resume},
		jobs: []db.ExtractionRow{*row("job-1", "job", []float32{1, 1})},
	}
	client := &fakeValidator{text: `{"match_score": 3, "match_reason": "wrong seniority"}`}

	summary, err := testMatcher(store, client, DefaultOptions()).Match(context.Background(), "resume-1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Unmatched)
	saved := store.savedFor("job-1")
	require.NotNil(t, saved)
	assert.Equal(t, db.StatusUnmatched, saved.Status)
	require.NotNil(t, saved.MatchScore, "rejected pairs keep their score for inspection")
}

func TestMatch_ProcessedJobsExcluded(t *testing.T) {
	resume := row("resume-1", "resume", []float32{1, 1})
	store := &fakeStore{
		rows: map[string]*db.ExtractionRow{"resume-1": resume},
		jobs: []db.ExtractionRow{
			*row("job-1", "job", []float32{1, 1}),
			*row("job-2", "job", []float32{1, 1}),
		},
		processed: map[string]bool{"job-1": true},
	}
	client := &fakeValidator{text: `{"match_score": 9, "match_reason": "fit"}`}

	summary, err := testMatcher(store, client, DefaultOptions()).Match(context.Background(), "resume-1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Matched)
	assert.Nil(t, store.savedFor("job-1"), "already-decided pairs are not rewritten")
	assert.NotNil(t, store.savedFor("job-2"))
}

func TestMatch_ValidationFailureNotPersisted(t *testing.T) {
	resume := row("resume-1", "resume", []float32{1, 1})
	store := &fakeStore{
		rows: map[string]*db.ExtractionRow{"resume-1": resume},
		jobs: []db.ExtractionRow{*row("job-1", "job", []float32{1, 1})},
	}
	client := &fakeValidator{err: errors.New("model unreachable")}

	opts := DefaultOptions()
	summary, err := testMatcher(store, client, opts).Match(context.Background(), "resume-1")
	require.NoError(t, err, "a failed pair does not fail the run")

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, opts.MaxRetries+1, client.callCount())
	assert.Nil(t, store.savedFor("job-1"), "undecided pairs stay eligible for the next run")
}

func TestMatch_ResumeWithoutEmbedding(t *testing.T) {
	resume := row("resume-1", "resume", nil)
	store := &fakeStore{rows: map[string]*db.ExtractionRow{"resume-1": resume}}

	_, err := testMatcher(store, &fakeValidator{}, DefaultOptions()).Match(context.Background(), "resume-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding")
}

func TestMatch_WrongKindRejected(t *testing.T) {
	store := &fakeStore{rows: map[string]*db.ExtractionRow{
		"job-1": row("job-1", "job", []float32{1}),
	}}

	_, err := testMatcher(store, &fakeValidator{}, DefaultOptions()).Match(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a resume")
}

func TestMatch_UnknownResume(t *testing.T) {
	store := &fakeStore{rows: map[string]*db.ExtractionRow{}}

	_, err := testMatcher(store, &fakeValidator{}, DefaultOptions()).Match(context.Background(), "missing")
	require.Error(t, err)
}
