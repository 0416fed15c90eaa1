package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/resume-pipeline/internal/extraction"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/scratch"
)

// ExtractionStore is the write surface the gateway needs. *DB satisfies it.
type ExtractionStore interface {
	UpsertExtraction(ctx context.Context, record *extraction.AcceptedRecord, cycle, industry string) error
	AddEmbedding(ctx context.Context, fileIdentifier string, vector []float32, meta *extraction.EmbeddingMetadata) error
}

// Gateway routes finished pipeline records to storage. A storage failure
// never fails the batch: the record is spilled to the scratch directory
// and processing continues.
type Gateway struct {
	store    ExtractionStore
	scratch  *scratch.Dir
	printer  *observability.Printer
	cycle    string
	industry string
	dryRun   bool
}

// GatewayOptions configures a persistence gateway
type GatewayOptions struct {
	Store    ExtractionStore
	Scratch  *scratch.Dir
	Printer  *observability.Printer
	Cycle    string
	Industry string
	DryRun   bool
}

// NewGateway creates a gateway. Store may be nil in dry-run mode.
func NewGateway(opts GatewayOptions) *Gateway {
	return &Gateway{
		store:    opts.Store,
		scratch:  opts.Scratch,
		printer:  opts.Printer,
		cycle:    opts.Cycle,
		industry: opts.Industry,
		dryRun:   opts.DryRun,
	}
}

// Persist stores one record. In dry-run mode the record is dumped to the
// printer and nothing is written. In live mode the row is upserted first
// and the embedding attached second, so a failed embedding write still
// leaves the extraction row in place.
func (g *Gateway) Persist(ctx context.Context, record *extraction.AcceptedRecord) {
	if g.dryRun {
		if g.printer != nil {
			g.printer.DumpRecord(record)
		}
		return
	}

	if g.store == nil {
		fmt.Printf("  Warning: no database configured, spilling %s to scratch\n", record.FileIdentifier)
		g.spill(record)
		return
	}

	if err := g.store.UpsertExtraction(ctx, record, g.cycle, g.industry); err != nil {
		fmt.Printf("  Warning: failed to persist %s, spilling to scratch: %v\n", record.FileIdentifier, err)
		g.spill(record)
		return
	}

	if len(record.Embedding) > 0 {
		if err := g.store.AddEmbedding(ctx, record.FileIdentifier, record.Embedding, record.EmbeddingMeta); err != nil {
			// The extraction row survived; the vector can be backfilled later.
			fmt.Printf("  Warning: failed to attach embedding for %s: %v\n", record.FileIdentifier, err)
		}
	}

	fmt.Printf("  💾 Persisted %s (score %.1f)\n", record.FileIdentifier, record.ValidationScore)
}

// spill writes every stage's raw output plus a record summary to the
// scratch directory so nothing is lost when storage is unavailable
func (g *Gateway) spill(record *extraction.AcceptedRecord) {
	if g.scratch == nil {
		fmt.Printf("  Warning: no scratch directory, record %s dropped\n", record.FileIdentifier)
		return
	}

	for stage, result := range record.Responses {
		if result.RawText == "" {
			continue
		}
		if err := g.scratch.WriteStageOutput(record.FileIdentifier, stage, result.RawText); err != nil {
			fmt.Printf("  Warning: failed to spill %s/%s: %v\n", record.FileIdentifier, stage, err)
		}
	}

	summary, err := json.Marshal(record)
	if err != nil {
		fmt.Printf("  Warning: failed to marshal record %s: %v\n", record.FileIdentifier, err)
		return
	}
	if err := g.scratch.WriteStageOutput(record.FileIdentifier, "record", string(summary)); err != nil {
		fmt.Printf("  Warning: failed to spill record %s: %v\n", record.FileIdentifier, err)
	}
}
