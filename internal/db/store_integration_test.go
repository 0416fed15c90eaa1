//go:build integration

package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/jonathan/resume-pipeline/internal/extraction"
)

func getTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	// Clean up test data before each test
	_, _ = db.pool.Exec(ctx, "DELETE FROM match_results WHERE cycle LIKE 'testcycle%'")
	_, _ = db.pool.Exec(ctx, "DELETE FROM extractions WHERE file_identifier LIKE 'testfile%'")

	return db
}

func testExtractionRecord(identifier string, kind extraction.ArtifactKind) *extraction.AcceptedRecord {
	return &extraction.AcceptedRecord{
		FileIdentifier: identifier,
		RunID:          uuid.New(),
		Kind:           kind,
		Responses: map[string]extraction.StageResult{
			extraction.StageExtraction: {
				Stage:   extraction.StageExtraction,
				RawText: `{"title": "Engineer"}`,
				Parsed:  map[string]any{"title": "Engineer"},
			},
		},
		ValidationScore: 8.0,
		Accepted:        true,
		AttemptsUsed:    1,
	}
}

func TestExtractionLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	record := testExtractionRecord("testfile-job-1", extraction.KindJob)

	t.Run("UpsertAndGet", func(t *testing.T) {
		if err := db.UpsertExtraction(ctx, record, "testcycle-a", "software"); err != nil {
			t.Fatalf("Failed to upsert extraction: %v", err)
		}

		row, err := db.GetExtraction(ctx, record.FileIdentifier)
		if err != nil {
			t.Fatalf("Failed to get extraction: %v", err)
		}
		if row == nil {
			t.Fatal("Expected a row after upsert, got nil")
		}
		if row.Kind != "job" {
			t.Errorf("Expected kind 'job', got %q", row.Kind)
		}
		if row.ValidationScore != 8.0 {
			t.Errorf("Expected score 8.0, got %v", row.ValidationScore)
		}
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		record.ValidationScore = 9.5
		record.AttemptsUsed = 2
		if err := db.UpsertExtraction(ctx, record, "testcycle-a", "software"); err != nil {
			t.Fatalf("Failed to re-upsert extraction: %v", err)
		}

		var count int
		err := db.pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM extractions WHERE file_identifier = $1",
			record.FileIdentifier).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to count rows: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 row after double upsert, got %d", count)
		}

		row, err := db.GetExtraction(ctx, record.FileIdentifier)
		if err != nil {
			t.Fatalf("Failed to get extraction: %v", err)
		}
		if row.ValidationScore != 9.5 {
			t.Errorf("Expected updated score 9.5, got %v", row.ValidationScore)
		}
		if row.AttemptsUsed != 2 {
			t.Errorf("Expected updated attempts 2, got %d", row.AttemptsUsed)
		}
	})

	t.Run("HasExtraction", func(t *testing.T) {
		exists, err := db.HasExtraction(ctx, record.FileIdentifier)
		if err != nil {
			t.Fatalf("Failed to check extraction: %v", err)
		}
		if !exists {
			t.Error("Expected HasExtraction true for stored identifier")
		}

		exists, err = db.HasExtraction(ctx, "testfile-never-stored")
		if err != nil {
			t.Fatalf("Failed to check extraction: %v", err)
		}
		if exists {
			t.Error("Expected HasExtraction false for unknown identifier")
		}
	})

	t.Run("AddEmbedding", func(t *testing.T) {
		meta := &extraction.EmbeddingMetadata{Model: "test-model", TaskType: "RETRIEVAL_DOCUMENT"}
		if err := db.AddEmbedding(ctx, record.FileIdentifier, []float32{0.1, 0.2, 0.3}, meta); err != nil {
			t.Fatalf("Failed to add embedding: %v", err)
		}

		row, err := db.GetExtraction(ctx, record.FileIdentifier)
		if err != nil {
			t.Fatalf("Failed to get extraction: %v", err)
		}
		if len(row.Embedding) != 3 {
			t.Errorf("Expected 3-dim embedding, got %d", len(row.Embedding))
		}
	})

	t.Run("AddEmbeddingMissingRow", func(t *testing.T) {
		err := db.AddEmbedding(ctx, "testfile-never-stored", []float32{0.1}, nil)
		if err == nil {
			t.Error("Expected error adding embedding to a missing row")
		}
	})

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		row, err := db.GetExtraction(ctx, "testfile-never-stored")
		if err != nil {
			t.Fatalf("Expected no error for missing row, got: %v", err)
		}
		if row != nil {
			t.Error("Expected nil row for missing identifier")
		}
	})
}

func TestListJobsFiltering(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	seed := []struct {
		identifier string
		kind       extraction.ArtifactKind
		cycle      string
		industry   string
		embedded   bool
	}{
		{"testfile-job-a", extraction.KindJob, "testcycle-1", "software", true},
		{"testfile-job-b", extraction.KindJob, "testcycle-1", "finance", true},
		{"testfile-job-c", extraction.KindJob, "testcycle-2", "software", true},
		{"testfile-job-d", extraction.KindJob, "testcycle-1", "software", false},
		{"testfile-resume-a", extraction.KindResume, "testcycle-1", "software", true},
	}
	for _, s := range seed {
		record := testExtractionRecord(s.identifier, s.kind)
		if err := db.UpsertExtraction(ctx, record, s.cycle, s.industry); err != nil {
			t.Fatalf("Failed to seed %s: %v", s.identifier, err)
		}
		if s.embedded {
			if err := db.AddEmbedding(ctx, s.identifier, []float32{0.5, 0.5}, nil); err != nil {
				t.Fatalf("Failed to embed %s: %v", s.identifier, err)
			}
		}
	}

	t.Run("CycleFilter", func(t *testing.T) {
		jobs, err := db.ListJobs(ctx, JobFilter{Cycle: "testcycle-1"})
		if err != nil {
			t.Fatalf("Failed to list jobs: %v", err)
		}
		// job-d has no embedding and resume-a is not a job
		if len(jobs) != 2 {
			t.Errorf("Expected 2 jobs, got %d", len(jobs))
		}
	})

	t.Run("IndustryFilter", func(t *testing.T) {
		jobs, err := db.ListJobs(ctx, JobFilter{Cycle: "testcycle-1", Industry: "finance"})
		if err != nil {
			t.Fatalf("Failed to list jobs: %v", err)
		}
		if len(jobs) != 1 || jobs[0].FileIdentifier != "testfile-job-b" {
			t.Errorf("Expected only testfile-job-b, got %+v", jobs)
		}
	})

	t.Run("CountMissingEmbeddings", func(t *testing.T) {
		count, err := db.CountMissingEmbeddings(ctx)
		if err != nil {
			t.Fatalf("Failed to count missing embeddings: %v", err)
		}
		if count < 1 {
			t.Errorf("Expected at least 1 missing embedding (testfile-job-d), got %d", count)
		}
	})
}

func TestMatchResults(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	score := 8.2
	match := MatchRow{
		Cycle:            "testcycle-m",
		ResumeIdentifier: "testfile-resume-m",
		JobIdentifier:    "testfile-job-m",
		Similarity:       0.81,
		MatchScore:       &score,
		MatchReason:      "strong skill overlap",
		Status:           StatusMatched,
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := db.SaveMatch(ctx, match); err != nil {
			t.Fatalf("Failed to save match: %v", err)
		}

		matches, err := db.ListMatches(ctx, "testcycle-m", "testfile-resume-m")
		if err != nil {
			t.Fatalf("Failed to list matches: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(matches))
		}
		if matches[0].Status != StatusMatched {
			t.Errorf("Expected matched status, got %q", matches[0].Status)
		}
		if matches[0].MatchScore == nil || *matches[0].MatchScore != 8.2 {
			t.Errorf("Expected score 8.2, got %v", matches[0].MatchScore)
		}
	})

	t.Run("SaveUpsertsOnRerun", func(t *testing.T) {
		match.Status = StatusUnmatched
		match.MatchScore = nil
		if err := db.SaveMatch(ctx, match); err != nil {
			t.Fatalf("Failed to re-save match: %v", err)
		}

		matches, err := db.ListMatches(ctx, "testcycle-m", "testfile-resume-m")
		if err != nil {
			t.Fatalf("Failed to list matches: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match after re-save, got %d", len(matches))
		}
		if matches[0].Status != StatusUnmatched {
			t.Errorf("Expected unmatched status after re-save, got %q", matches[0].Status)
		}
	})

	t.Run("ProcessedJobIDsScopedToCycle", func(t *testing.T) {
		processed, err := db.ProcessedJobIDs(ctx, "testcycle-m", "testfile-resume-m")
		if err != nil {
			t.Fatalf("Failed to load processed jobs: %v", err)
		}
		if !processed["testfile-job-m"] {
			t.Error("Expected testfile-job-m to be processed in its own cycle")
		}

		other, err := db.ProcessedJobIDs(ctx, "testcycle-other", "testfile-resume-m")
		if err != nil {
			t.Fatalf("Failed to load processed jobs: %v", err)
		}
		if other["testfile-job-m"] {
			t.Error("A decision in one cycle must not exclude the job in another")
		}
	})
}
