// Package ingestion supplies source artifacts (resume files, job posting
// text) to the extraction pipeline and owns their lifecycle.
package ingestion

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/jonathan/resume-pipeline/internal/llm"
)

// SourceArtifact is the raw input to one pipeline run. For file-backed
// artifacts the uploaded handle must be released with Release on every
// exit path, whether the run succeeded or not.
type SourceArtifact struct {
	Identifier string
	Text       string
	handle     *llm.FileHandle
	client     llm.Client
}

// FileHandle returns the uploaded file handle, or nil for text artifacts
func (a *SourceArtifact) FileHandle() *llm.FileHandle {
	return a.handle
}

// Release deletes the uploaded file from the model-hosting side.
// Safe to call on text artifacts and safe to call more than once.
func (a *SourceArtifact) Release(ctx context.Context) {
	if a.handle == nil || a.client == nil {
		return
	}
	if err := a.client.DeleteFile(ctx, a.handle); err != nil {
		log.Printf("Warning: failed to release uploaded file %s: %v", a.handle.Name, err)
	}
	a.handle = nil
}

// UploadResume uploads a resume file and returns an artifact owning the handle.
// The artifact identifier is the file's base name.
func UploadResume(ctx context.Context, client llm.Client, path string) (*SourceArtifact, error) {
	if path == "" {
		return nil, fmt.Errorf("resume path is empty")
	}

	mimeType, err := MimeTypeFor(path)
	if err != nil {
		return nil, err
	}

	handle, err := client.UploadFile(ctx, path, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload resume %s: %w", path, err)
	}

	return &SourceArtifact{
		Identifier: filepath.Base(path),
		handle:     handle,
		client:     client,
	}, nil
}

// JobText wraps job-posting text as a source artifact. HTML content is
// reduced to text first.
func JobText(identifier, content string) (*SourceArtifact, error) {
	if identifier == "" {
		return nil, fmt.Errorf("job identifier is empty")
	}
	if looksLikeHTML(content) {
		text, err := ExtractTextFromHTML(content)
		if err == nil && text != "" {
			content = text
		}
	}
	content = CleanText(content)
	if content == "" {
		return nil, fmt.Errorf("job %s has no usable content", identifier)
	}
	return &SourceArtifact{Identifier: identifier, Text: content}, nil
}

// MimeTypeFor maps a resume file extension to its MIME type
func MimeTypeFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf", nil
	case ".txt", ".md":
		return "text/plain", nil
	case ".html", ".htm":
		return "text/html", nil
	default:
		return "", fmt.Errorf("unsupported resume file type: %s", filepath.Ext(path))
	}
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div") || strings.Contains(lower, "<p>")
}
