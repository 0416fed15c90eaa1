package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/verify"
)

var verifyLinksCommand = &cobra.Command{
	Use:   "verify-links [url...]",
	Short: "Check that job apply links still resolve to live postings",
	Long: `Verifies apply links over a bounded worker pool. URLs can be passed as
arguments, or pulled from a resume's matched jobs with --cycle and --resume
(job identifiers that are not URLs are skipped).`,
	RunE: runVerifyLinksCmd,
}

var (
	verifyCycle         string
	verifyResume        string
	verifyTimeout       time.Duration
	verifyMaxConcurrent int
	verifyDatabaseURL   string
	verifyVerbose       bool
)

func init() {
	verifyLinksCommand.Flags().StringVar(&verifyCycle, "cycle", "", "Cycle to pull matched jobs from (with --resume)")
	verifyLinksCommand.Flags().StringVarP(&verifyResume, "resume", "r", "", "Resume identifier to pull matched jobs for")
	verifyLinksCommand.Flags().DurationVar(&verifyTimeout, "timeout", verify.DefaultTimeout, "Per-link check timeout")
	verifyLinksCommand.Flags().IntVar(&verifyMaxConcurrent, "max-concurrent", 4, "Link check worker pool size")
	verifyLinksCommand.Flags().StringVar(&verifyDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	verifyLinksCommand.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "Print browser rendering details")

	rootCmd.AddCommand(verifyLinksCommand)
}

func runVerifyLinksCmd(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	urls := args
	if len(urls) == 0 {
		if verifyResume == "" || verifyCycle == "" {
			return fmt.Errorf("pass URLs as arguments or set both --resume and --cycle")
		}
		pulled, err := matchedJobURLs(ctx, verifyCycle, verifyResume)
		if err != nil {
			return err
		}
		urls = pulled
	}
	if len(urls) == 0 {
		fmt.Println("No links to verify.")
		return nil
	}

	checker := verify.NewChecker(verifyTimeout, verifyMaxConcurrent, verifyVerbose)
	results := checker.CheckAll(ctx, urls)

	var live, expired, dead int
	for _, r := range results {
		switch r.Status {
		case verify.StatusLive:
			live++
			fmt.Printf("  ✅ %s\n", r.URL)
		case verify.StatusExpired:
			expired++
			fmt.Printf("  ⚠️ %s (expired: %s)\n", r.URL, r.Detail)
		default:
			dead++
			fmt.Printf("  ❌ %s (%s)\n", r.URL, r.Detail)
		}
	}
	fmt.Printf("Checked %d links: %d live, %d expired, %d dead\n", len(results), live, expired, dead)
	return nil
}

// matchedJobURLs loads the matched jobs for a resume and keeps the
// identifiers that parse as absolute URLs
func matchedJobURLs(ctx context.Context, cycle, resume string) ([]string, error) {
	databaseURL := verifyDatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	matches, err := database.ListMatches(ctx, cycle, resume)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, m := range matches {
		if m.Status != db.StatusMatched {
			continue
		}
		parsed, err := url.Parse(m.JobIdentifier)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			continue
		}
		urls = append(urls, m.JobIdentifier)
	}
	return urls, nil
}
