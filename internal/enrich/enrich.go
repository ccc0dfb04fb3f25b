// Package enrich turns a scraped article into a structured rewrite by prompting a generative model.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"curator/internal/core"
	"curator/internal/llm"
)

// noContentPlaceholder stands in for an empty scrape so the model still sees the stub metadata.
const noContentPlaceholder = "No content available"

// Enricher prompts a generator for the refined article of a stub.
type Enricher struct {
	generator  llm.Generator
	structured bool
}

// Option customizes an Enricher.
type Option func(*Enricher)

// WithStructuredOutput asks the model for a schema-constrained JSON reply.
func WithStructuredOutput(enabled bool) Option {
	return func(e *Enricher) { e.structured = enabled }
}

// New creates an Enricher backed by generator.
func New(generator llm.Generator, opts ...Option) *Enricher {
	e := &Enricher{generator: generator}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns the model's raw reply for the stub and its scraped document.
// The reply is free text; callers run it through the response extractor.
func (e *Enricher) Enrich(ctx context.Context, stub core.ArticleStub, doc *core.ScrapedDocument) (string, error) {
	content := ""
	if doc != nil {
		content = doc.Content
	}

	options := llm.TextGenerationOptions{}
	if e.structured {
		options.ResponseSchema = EnrichmentSchema()
	}

	reply, err := e.generator.GenerateText(ctx, BuildPrompt(stub.Category, stub.Title, stub.Snippet, content), options)
	if err != nil {
		return "", fmt.Errorf("generate enrichment: %w", err)
	}
	return reply, nil
}

// BuildPrompt renders the enrichment instruction for one article.
func BuildPrompt(category core.Category, title, snippet, content string) string {
	if strings.TrimSpace(content) == "" {
		content = noContentPlaceholder
	}

	return fmt.Sprintf(`You are a news editor for the %s section. Rewrite the article below for a general audience.

Original Title: %s

Snippet: %s

Article Content:
%s

Respond with a single JSON object and nothing else. The object must have exactly these fields:
- "refinedTitle": a clear, engaging headline
- "refinedArticle": the complete rewritten article as plain text paragraphs, with no markdown, HTML or other markup
- "summary": a summary of 3-4 sentences
- "keyTakeaways": an array of 5-7 short strings, each one key point from the article

Wrap the JSON object in a fenced code block tagged json.`, category, title, snippet, content)
}

// EnrichmentSchema is the response schema used when structured output is enabled.
func EnrichmentSchema() *genai.Schema {
	minItems := int64(5)
	maxItems := int64(7)
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"refinedTitle": {
				Type:        genai.TypeString,
				Description: "A clear, engaging headline",
			},
			"refinedArticle": {
				Type:        genai.TypeString,
				Description: "The complete rewritten article as plain text without markup",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "A summary of 3-4 sentences",
			},
			"keyTakeaways": {
				Type:        genai.TypeArray,
				Description: "5-7 key points from the article",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    &minItems,
				MaxItems:    &maxItems,
			},
		},
		Required: []string{"refinedTitle", "refinedArticle", "summary", "keyTakeaways"},
	}
}
