// Package observability provides formatted output utilities for verbose
// and dry-run CLI modes.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-pipeline/internal/extraction"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// rawPreviewChars bounds how much stage raw text a dump shows
	rawPreviewChars = 400
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRecordSummary outputs a human-readable summary of a pipeline record.
func (p *Printer) PrintRecordSummary(record *extraction.AcceptedRecord) {
	if record == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Artifact:  %s\n", record.FileIdentifier))
	sb.WriteString(fmt.Sprintf("Kind:      %s\n", record.Kind))
	sb.WriteString(fmt.Sprintf("Run:       %s\n", record.RunID))
	sb.WriteString(fmt.Sprintf("Score:     %.1f", record.ValidationScore))
	if record.Accepted {
		sb.WriteString("  ✅ accepted\n")
	} else {
		sb.WriteString("  ⚠ below threshold\n")
	}
	sb.WriteString(fmt.Sprintf("Attempts:  %d\n", record.AttemptsUsed))
	if len(record.Embedding) > 0 {
		sb.WriteString(fmt.Sprintf("Embedding: %d dims (%s)", len(record.Embedding), record.EmbeddingMeta.Model))
	} else {
		sb.WriteString("Embedding: none")
	}

	p.printBox("EXTRACTION RECORD", sb.String())
}

// DumpRecord outputs each stage's raw output. Used in dry-run mode where
// nothing is written to the database.
func (p *Printer) DumpRecord(record *extraction.AcceptedRecord) {
	if record == nil {
		return
	}
	p.PrintRecordSummary(record)

	for _, stage := range []string{
		extraction.StageExtraction,
		extraction.StageDerivedMetrics,
		extraction.StageValidation,
	} {
		result, ok := record.Responses[stage]
		if !ok {
			continue
		}
		raw := result.RawText
		if raw == "" {
			raw = "(no output)"
		}
		if len(raw) > rawPreviewChars {
			raw = raw[:rawPreviewChars] + "\n..."
		}
		p.printBox(strings.ToUpper(stage), raw)
	}
}

// PrintMatchDecision outputs one resume/job pairing decision.
func (p *Printer) PrintMatchDecision(resume, job string, similarity float64, score *float64, status string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Resume:     %s\n", resume))
	sb.WriteString(fmt.Sprintf("Job:        %s\n", job))
	sb.WriteString(fmt.Sprintf("Similarity: %.3f\n", similarity))
	if score != nil {
		sb.WriteString(fmt.Sprintf("LLM score:  %.1f\n", *score))
	} else {
		sb.WriteString("LLM score:  skipped\n")
	}
	sb.WriteString(fmt.Sprintf("Status:     %s", status))

	p.printBox("MATCH DECISION", sb.String())
}

// PrintBatchSummary outputs the closing tally of a batch run.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintBatchSummary(processed, accepted, failed int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Processed: %d\n", processed))
	sb.WriteString(fmt.Sprintf("Accepted:  %d\n", accepted))
	sb.WriteString(fmt.Sprintf("Failed:    %d", failed))
	p.printBox("BATCH SUMMARY", sb.String())
}
