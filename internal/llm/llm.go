package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model used for enrichment.
	DefaultModel = "gemini-2.0-flash"
)

var (
	// ErrMissingAPIKey is returned when no Gemini API key is configured.
	ErrMissingAPIKey = errors.New("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")

	// ErrEmptyResponse is returned when the model replies with no text.
	ErrEmptyResponse = errors.New("empty response from LLM")
)

// Generator produces free-form text for a prompt.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error)
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	ResponseSchema *genai.Schema // Optional: forces a JSON reply of this shape
}

// Client represents a client for interacting with Gemini.
type Client struct {
	modelName string
	defaults  TextGenerationOptions
	gClient   *genai.Client
}

// Config holds the settings NewClient needs.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName: modelName,
		defaults: TextGenerationOptions{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		},
		gClient: gClient,
	}, nil
}

// GetModelName returns the model used when options do not override it
func (c *Client) GetModelName() string {
	return c.modelName
}

// GenerateText generates text using the LLM with specified options.
// Zero-valued options fall back to the client defaults.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, buildConfig(options, c.defaults))
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

func buildConfig(options, defaults TextGenerationOptions) *genai.GenerateContentConfig {
	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaults.MaxTokens
	}
	temperature := options.Temperature
	if temperature <= 0 {
		temperature = defaults.Temperature
	}
	if maxTokens <= 0 && temperature <= 0 && options.ResponseSchema == nil {
		return nil
	}

	config := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		config.MaxOutputTokens = maxTokens
	}
	if temperature > 0 {
		config.Temperature = &temperature
	}
	if options.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = options.ResponseSchema
	}
	return config
}
