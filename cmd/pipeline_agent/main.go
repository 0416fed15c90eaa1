// Package main provides the entry point for the extraction and matching
// pipeline CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipeline_agent",
	Short: "Resume/job extraction and matching pipeline",
	Long:  "Pipeline Agent runs multi-pass LLM extraction over resumes and job postings, stores validated results with embeddings, and matches resumes to stored jobs.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
