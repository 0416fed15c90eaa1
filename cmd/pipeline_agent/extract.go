package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/extraction"
	"github.com/jonathan/resume-pipeline/internal/ingestion"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/scratch"
)

var extractCommand = &cobra.Command{
	Use:   "extract",
	Short: "Run the extraction pipeline over resumes or job postings",
	Long: `Runs the staged extraction pipeline (extraction -> derived metrics -> validation)
over each input artifact, attaches embeddings, and persists the results.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runExtractCmd,
}

var (
	extractConfigPath  string
	extractInput       string
	extractKind        string
	extractCycle       string
	extractIndustry    string
	extractScratchDir  string
	extractLimit       int
	extractForce       bool
	extractDryRun      bool
	extractAPIKey      string
	extractDatabaseURL string
	extractVerbose     bool
)

func init() {
	extractCommand.Flags().StringVar(&extractConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	extractCommand.Flags().StringVarP(&extractInput, "input", "i", "", "Input file or directory of artifacts")
	extractCommand.Flags().StringVar(&extractKind, "kind", "resume", "Artifact kind: resume or job")
	extractCommand.Flags().StringVar(&extractCycle, "cycle", "", "Processing cycle tag stored with each record")
	extractCommand.Flags().StringVar(&extractIndustry, "industry", "", "Industry tag stored with each record")
	extractCommand.Flags().StringVar(&extractScratchDir, "scratch", "", "Scratch directory for stage audit files (default: scratch)")
	extractCommand.Flags().IntVar(&extractLimit, "limit", 0, "Maximum number of artifacts to process (0 = all)")
	extractCommand.Flags().BoolVar(&extractForce, "force", false, "Reprocess artifacts that already have stored records")
	extractCommand.Flags().BoolVar(&extractDryRun, "dry-run", false, "Print records instead of writing to the database")
	extractCommand.Flags().StringVar(&extractAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	extractCommand.Flags().StringVar(&extractDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	extractCommand.Flags().BoolVarP(&extractVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(extractCommand)
}

func runExtractCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var cfg config.Config
	if extractConfigPath != "" {
		loadedCfg, err := config.LoadConfig(extractConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loadedCfg.Validate(); err != nil {
			return err
		}
		cfg = *loadedCfg
		if extractVerbose {
			fmt.Printf("Loaded config from: %s\n", extractConfigPath)
		}
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	if cmd.Flags().Changed("input") {
		cfg.InputDir = extractInput
	}
	if cmd.Flags().Changed("cycle") {
		cfg.Cycle = extractCycle
	}
	if cmd.Flags().Changed("industry") {
		cfg.Industry = extractIndustry
	}
	if cmd.Flags().Changed("scratch") {
		cfg.ScratchDir = extractScratchDir
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = extractAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = extractDatabaseURL
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = extractVerbose
	}

	// Step 3: Apply defaults for unset values
	cfg = cfg.MergeWithDefaults(defaultConfig())

	// Step 4: Environment fallbacks
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	kind := extraction.ArtifactKind(extractKind)
	if kind != extraction.KindResume && kind != extraction.KindJob {
		return fmt.Errorf("--kind must be resume or job, got %q", extractKind)
	}
	if cfg.InputDir == "" {
		return fmt.Errorf("--input is required (via flag or config)")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}
	if !extractDryRun && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required (or use --dry-run)")
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	scratchDir, err := scratch.New(cfg.ScratchDir)
	if err != nil {
		return err
	}

	var database *db.DB
	if !extractDryRun {
		database, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	printer := observability.NewPrinter(os.Stdout)
	opts := extraction.DefaultOptions()
	opts.Verbose = cfg.Verbose
	pipeline := extraction.New(client, scratchDir, opts)

	var store db.ExtractionStore
	if database != nil {
		store = database
	}
	gateway := db.NewGateway(db.GatewayOptions{
		Store:    store,
		Scratch:  scratchDir,
		Printer:  printer,
		Cycle:    cfg.Cycle,
		Industry: cfg.Industry,
		DryRun:   extractDryRun,
	})

	files, err := collectInputFiles(cfg.InputDir, kind, extractLimit)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No input artifacts found.")
		return nil
	}

	var processed, accepted, failed int
	for _, path := range files {
		identifier := filepath.Base(path)
		if database != nil && !extractForce {
			exists, err := database.HasExtraction(ctx, identifier)
			if err != nil {
				return err
			}
			if exists {
				fmt.Printf("Skipping %s: already processed (use --force to redo)\n", identifier)
				continue
			}
		}

		processed++
		record, err := processArtifact(ctx, client, pipeline, path, kind)
		if err != nil {
			failed++
			fmt.Printf("  ❌ %s: %v\n", identifier, err)
			continue
		}
		if record.Accepted {
			accepted++
		}
		gateway.Persist(ctx, record)
	}

	printer.PrintBatchSummary(processed, accepted, failed)

	if database != nil {
		missing, err := database.CountMissingEmbeddings(ctx)
		if err == nil && missing > 0 {
			fmt.Printf("⚠️ %d stored records have no embedding; rerun with --force to backfill\n", missing)
		}
	}
	return nil
}

// processArtifact runs the pipeline for one input file, releasing any
// uploaded file handle on every exit path
func processArtifact(ctx context.Context, client llm.Client, pipeline *extraction.Pipeline, path string, kind extraction.ArtifactKind) (*extraction.AcceptedRecord, error) {
	var artifact *ingestion.SourceArtifact
	var err error

	switch kind {
	case extraction.KindResume:
		artifact, err = ingestion.UploadResume(ctx, client, path)
	case extraction.KindJob:
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, readErr)
		}
		artifact, err = ingestion.JobText(filepath.Base(path), string(content))
	}
	if err != nil {
		return nil, err
	}
	defer artifact.Release(ctx)

	return pipeline.Run(ctx, artifact, kind)
}

// collectInputFiles resolves the input path to a sorted, bounded list of
// artifact files
func collectInputFiles(input string, kind extraction.ArtifactKind, limit int) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input path %s: %w", input, err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", input, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if supportedExt(entry.Name(), kind) {
			files = append(files, filepath.Join(input, entry.Name()))
		}
	}
	sort.Strings(files)

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func supportedExt(name string, kind extraction.ArtifactKind) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if kind == extraction.KindResume {
		return ext == ".pdf" || ext == ".txt" || ext == ".md"
	}
	return ext == ".txt" || ext == ".html" || ext == ".htm" || ext == ".md"
}
