package extraction

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonathan/resume-pipeline/internal/llm"
)

// projectionFields are the extraction sub-fields worth embedding, in
// priority order
var projectionFields = []string{
	"title", "summary", "skills", "responsibilities",
	"requirements", "requirements_met", "nice_to_have",
}

// embed derives a text projection from the accepted extraction output and
// attaches its embedding to the record. Any failure leaves the record
// without an embedding; persistence proceeds regardless.
func (p *Pipeline) embed(ctx context.Context, record *AcceptedRecord) {
	extracted, ok := record.Responses[StageExtraction]
	if !ok || extracted.Failed() {
		log.Printf("Warning: no extraction output to embed for %s", record.FileIdentifier)
		return
	}

	projection := BuildProjection(extracted.Parsed, p.opts.EmbeddingCharBudget)
	if projection == "" {
		log.Printf("Warning: empty embedding projection for %s", record.FileIdentifier)
		return
	}

	task := llm.TaskDocument
	if record.Kind == KindResume {
		task = llm.TaskQuery
	}

	vector, err := p.client.EmbedText(ctx, projection, task)
	if err != nil {
		log.Printf("Warning: embedding unavailable for %s: %v", record.FileIdentifier, err)
		return
	}

	record.Embedding = vector
	record.EmbeddingMeta = &EmbeddingMetadata{
		Model:       p.client.EmbeddingModel(),
		TaskType:    string(task),
		GeneratedAt: time.Now().UTC(),
	}
}

// BuildProjection concatenates the salient extraction fields into the text
// sent for embedding, truncated to the character budget
func BuildProjection(parsed map[string]any, budget int) string {
	var sb strings.Builder
	for _, field := range projectionFields {
		raw, ok := parsed[field]
		if !ok || raw == nil {
			continue
		}
		text := flatten(raw)
		if text == "" {
			continue
		}
		sb.WriteString(field)
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return llm.Truncate(strings.TrimSpace(sb.String()), budget)
}

// flatten renders a parsed JSON value as projection text
func flatten(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}
