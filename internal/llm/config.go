package llm

import "github.com/google/generative-ai-go/genai"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: classification, match validation
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: extraction, derived metrics
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: cross-checking validation passes
	TierAdvanced ModelTier = "advanced"
)

// EmbeddingTask selects the embedding task type for a request
type EmbeddingTask string

const (
	// TaskDocument embeds stored content (job postings, extracted resumes)
	TaskDocument EmbeddingTask = "retrieval_document"
	// TaskQuery embeds lookup content (a resume searching for jobs)
	TaskQuery EmbeddingTask = "retrieval_query"
)

func (t EmbeddingTask) genaiTaskType() genai.TaskType {
	switch t {
	case TaskQuery:
		return genai.TaskTypeRetrievalQuery
	default:
		return genai.TaskTypeRetrievalDocument
	}
}

// Config holds the model configuration for the application
type Config struct {
	Models         map[ModelTier]string
	EmbeddingModel string
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		EmbeddingModel: "text-embedding-004",
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Models:         make(map[ModelTier]string),
		EmbeddingModel: c.EmbeddingModel,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
