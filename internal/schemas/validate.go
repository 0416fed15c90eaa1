// Package schemas provides JSON Schema validation for structured stage outputs.
// Reference schemas are embedded at compile time and loaded once.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed reference/*.json
var referenceFiles embed.FS

// Known reference schema names
const (
	ResumeExtraction = "resume_extraction"
	JobExtraction    = "job_extraction"
	DerivedMetrics   = "derived_metrics"
)

var (
	refCache   = make(map[string]string)
	refCacheMu sync.RWMutex
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Name    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Name, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// ReferenceText returns the raw text of an embedded reference schema.
// Used both for validation and for inclusion in validation prompts.
func ReferenceText(name string) (string, error) {
	refCacheMu.RLock()
	if text, ok := refCache[name]; ok {
		refCacheMu.RUnlock()
		return text, nil
	}
	refCacheMu.RUnlock()

	data, err := referenceFiles.ReadFile("reference/" + name + ".json")
	if err != nil {
		return "", &SchemaLoadError{Name: name, Message: "unknown reference schema", Cause: err}
	}

	refCacheMu.Lock()
	refCache[name] = string(data)
	refCacheMu.Unlock()

	return string(data), nil
}

// MustReferenceText returns a reference schema text, panicking if absent.
// Use only for schemas known at compile time.
func MustReferenceText(name string) string {
	text, err := ReferenceText(name)
	if err != nil {
		panic(fmt.Sprintf("failed to load reference schema: %v", err))
	}
	return text
}

// ValidateAgainst validates JSON content against a named reference schema.
// Returns nil on success, *ValidationError on content problems, and
// *SchemaLoadError if the schema itself cannot be loaded.
func ValidateAgainst(name, jsonContent string) error {
	schemaText, err := ReferenceText(name)
	if err != nil {
		return err
	}
	return ValidateJSONString(schemaText, jsonContent)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Name:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}

	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
