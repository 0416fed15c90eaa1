package main

import "github.com/jonathan/resume-pipeline/internal/config"

// defaultConfig holds the values used when neither the config file nor a
// CLI flag sets a field
func defaultConfig() config.Config {
	return config.Config{
		ScratchDir:          "scratch",
		MaxConcurrent:       4,
		SimilarityThreshold: 0.75,
		ScoreThreshold:      7.0,
	}
}
