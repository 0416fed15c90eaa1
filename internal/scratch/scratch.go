// Package scratch writes stage outputs to plain-text audit files.
// Files are named {identifier}_{stage}.txt and are meant for human
// inspection and as a spill fallback when database writes fail.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a scratch output directory
type Dir struct {
	path string
}

// New creates the scratch directory if needed and returns it
func New(path string) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("scratch directory path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path
func (d *Dir) Path() string {
	return d.path
}

// WriteStageOutput writes raw stage text to {identifier}_{stage}.txt.
// Identifiers may be file names; path separators are flattened.
func (d *Dir) WriteStageOutput(identifier, stage, text string) error {
	name := fmt.Sprintf("%s_%s.txt", sanitize(identifier), sanitize(stage))
	full := filepath.Join(d.path, name)
	if err := os.WriteFile(full, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write scratch file %s: %w", full, err)
	}
	return nil
}

// StageOutputPath returns the path a stage output would be written to
func (d *Dir) StageOutputPath(identifier, stage string) string {
	return filepath.Join(d.path, fmt.Sprintf("%s_%s.txt", sanitize(identifier), sanitize(stage)))
}

func sanitize(s string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return replacer.Replace(s)
}
