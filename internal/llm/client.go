// Package llm provides centralized LLM configuration and client abstractions
// for the extraction and matching pipelines.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// FileHandle references a file uploaded to the model-hosting side.
// The caller owns the handle and must release it with DeleteFile.
type FileHandle struct {
	Name     string
	URI      string
	MIMEType string
}

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates text content using the specified model tier
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON generates JSON content using the specified model tier.
	// If file is non-nil the uploaded file is attached to the request.
	GenerateJSON(ctx context.Context, prompt string, file *FileHandle, tier ModelTier) (string, error)
	// UploadFile uploads a local file for use in subsequent generate calls
	UploadFile(ctx context.Context, path, mimeType string) (*FileHandle, error)
	// DeleteFile releases an uploaded file on the hosting side
	DeleteFile(ctx context.Context, handle *FileHandle) error
	// EmbedText derives a vector representation of text for similarity search
	EmbedText(ctx context.Context, text string, taskType EmbeddingTask) ([]float32, error)
	// EmbeddingModel returns the configured embedding model name
	EmbeddingModel() string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return NewGeminiClient(ctx, config, apiKey)
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1) // Low temperature for consistent output

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(resp)
}

// GenerateJSON generates JSON content using the specified model tier,
// optionally attaching an uploaded file to the request.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, file *FileHandle, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	parts := make([]genai.Part, 0, 2)
	if file != nil {
		parts = append(parts, genai.FileData{URI: file.URI, MIMEType: file.MIMEType})
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}

	// Clean any markdown code block wrappers
	return CleanJSONBlock(text), nil
}

// UploadFile uploads a local file through the Files API and waits until it
// is ready for use in generate calls.
func (c *GeminiClient) UploadFile(ctx context.Context, path, mimeType string) (*FileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	uploaded, err := c.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{MIMEType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file %s: %w", path, err)
	}

	// Uploaded files are processed asynchronously; wait for ACTIVE before use.
	for uploaded.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		uploaded, err = c.client.GetFile(ctx, uploaded.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to poll uploaded file: %w", err)
		}
	}
	if uploaded.State != genai.FileStateActive {
		return nil, fmt.Errorf("uploaded file %s is not usable (state %v)", uploaded.Name, uploaded.State)
	}

	return &FileHandle{
		Name:     uploaded.Name,
		URI:      uploaded.URI,
		MIMEType: mimeType,
	}, nil
}

// DeleteFile releases an uploaded file on the hosting side
func (c *GeminiClient) DeleteFile(ctx context.Context, handle *FileHandle) error {
	if handle == nil || handle.Name == "" {
		return nil
	}
	if err := c.client.DeleteFile(ctx, handle.Name); err != nil {
		return fmt.Errorf("failed to delete uploaded file %s: %w", handle.Name, err)
	}
	return nil
}

// EmbedText derives a vector representation of the text
func (c *GeminiClient) EmbedText(ctx context.Context, text string, taskType EmbeddingTask) ([]float32, error) {
	em := c.client.EmbeddingModel(c.config.EmbeddingModel)
	em.TaskType = taskType.genaiTaskType()

	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return resp.Embedding.Values, nil
}

// EmbeddingModel returns the configured embedding model name
func (c *GeminiClient) EmbeddingModel() string {
	return c.config.EmbeddingModel
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
