package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/matching"
	"github.com/jonathan/resume-pipeline/internal/observability"
)

var matchCommand = &cobra.Command{
	Use:   "match",
	Short: "Match a stored resume against stored job postings",
	Long: `Pairs a resume's embedding against every eligible job in the cycle:
cosine similarity gates which pairs reach LLM validation, and both matched
and unmatched decisions are recorded so a rerun skips them.`,
	RunE: runMatchCmd,
}

var (
	matchConfigPath    string
	matchResume        string
	matchCycle         string
	matchIndustry      string
	matchSimilarity    float64
	matchScore         float64
	matchMaxConcurrent int
	matchAPIKey        string
	matchDatabaseURL   string
	matchVerbose       bool
)

func init() {
	matchCommand.Flags().StringVar(&matchConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	matchCommand.Flags().StringVarP(&matchResume, "resume", "r", "", "File identifier of the stored resume to match")
	matchCommand.Flags().StringVar(&matchCycle, "cycle", "", "Processing cycle scoping jobs and prior decisions")
	matchCommand.Flags().StringVar(&matchIndustry, "industry", "", "Restrict jobs to one industry")
	matchCommand.Flags().Float64Var(&matchSimilarity, "similarity-threshold", 0, "Cosine similarity gating LLM validation (default 0.75)")
	matchCommand.Flags().Float64Var(&matchScore, "score-threshold", 0, "LLM match score accepting a pair (default 7.0)")
	matchCommand.Flags().IntVar(&matchMaxConcurrent, "max-concurrent", 0, "Validation worker pool size (default 4)")
	matchCommand.Flags().StringVar(&matchAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	matchCommand.Flags().StringVar(&matchDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	matchCommand.Flags().BoolVarP(&matchVerbose, "verbose", "v", false, "Print each pairing decision")

	rootCmd.AddCommand(matchCommand)
}

func runMatchCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var cfg config.Config
	if matchConfigPath != "" {
		loadedCfg, err := config.LoadConfig(matchConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loadedCfg.Validate(); err != nil {
			return err
		}
		cfg = *loadedCfg
	}

	// Step 2: Apply CLI overrides
	if cmd.Flags().Changed("cycle") {
		cfg.Cycle = matchCycle
	}
	if cmd.Flags().Changed("industry") {
		cfg.Industry = matchIndustry
	}
	if cmd.Flags().Changed("similarity-threshold") {
		cfg.SimilarityThreshold = matchSimilarity
	}
	if cmd.Flags().Changed("score-threshold") {
		cfg.ScoreThreshold = matchScore
	}
	if cmd.Flags().Changed("max-concurrent") {
		cfg.MaxConcurrent = matchMaxConcurrent
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = matchAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = matchDatabaseURL
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = matchVerbose
	}

	// Step 3: Defaults and environment fallbacks
	cfg = cfg.MergeWithDefaults(defaultConfig())
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	// Step 4: Validate required fields
	if matchResume == "" {
		return fmt.Errorf("--resume is required")
	}
	if cfg.Cycle == "" {
		return fmt.Errorf("--cycle is required (via flag or config)")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	missing, err := database.CountMissingEmbeddings(ctx)
	if err != nil {
		return err
	}
	if missing > 0 {
		fmt.Printf("⚠️ %d stored records have no embedding and cannot participate in matching\n", missing)
	}

	opts := matching.Options{
		Cycle:               cfg.Cycle,
		Industry:            cfg.Industry,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ScoreThreshold:      cfg.ScoreThreshold,
		MaxConcurrent:       cfg.MaxConcurrent,
		MaxRetries:          matching.DefaultOptions().MaxRetries,
		Verbose:             cfg.Verbose,
	}
	matcher := matching.New(client, database, observability.NewPrinter(os.Stdout), opts)

	summary, err := matcher.Match(ctx, matchResume)
	if err != nil {
		return err
	}

	matches, err := database.ListMatches(ctx, cfg.Cycle, matchResume)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m.Status != db.StatusMatched {
			continue
		}
		score := 0.0
		if m.MatchScore != nil {
			score = *m.MatchScore
		}
		fmt.Printf("  ✅ %s (similarity %.3f, score %.1f)\n", m.JobIdentifier, m.Similarity, score)
	}
	if summary.Matched == 0 {
		fmt.Println("No matches in this cycle.")
	}
	return nil
}
