package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed interest categories that drive discovery and browsing.
type Category string

const (
	CategoryTechnology    Category = "technology"
	CategoryAI            Category = "ai"
	CategoryBusiness      Category = "business"
	CategoryScience       Category = "science"
	CategoryHealth        Category = "health"
	CategoryPolitics      Category = "politics"
	CategoryEntertainment Category = "entertainment"
)

// Categories returns the closed set of categories in their canonical order.
func Categories() []Category {
	return []Category{
		CategoryTechnology,
		CategoryAI,
		CategoryBusiness,
		CategoryScience,
		CategoryHealth,
		CategoryPolitics,
		CategoryEntertainment,
	}
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalizes user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// ArticleStub is a discovered candidate article before content or enrichment exists.
type ArticleStub struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Link            string     `json:"link"` // Globally unique
	Snippet         string     `json:"snippet"`
	Category        Category   `json:"category"`
	Position        int        `json:"position"`       // Rank in the search results
	Date            string     `json:"date,omitempty"` // Provider date text, e.g. "2 hours ago"
	Processed       bool       `json:"processed"`
	ProcessingError *string    `json:"processing_error,omitempty"`
	Content         *string    `json:"content,omitempty"` // Scraped plain text
	Attempts        int        `json:"attempts"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Failed reports whether the stub carries a recorded processing error.
func (s ArticleStub) Failed() bool {
	return s.ProcessingError != nil && *s.ProcessingError != ""
}

// ScrapedDocument is what the extraction provider returns for a stub's link.
type ScrapedDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Enrichment is the structured rewrite produced by the generative provider.
type Enrichment struct {
	RefinedTitle   string   `json:"refinedTitle"`
	RefinedArticle string   `json:"refinedArticle"`
	Summary        string   `json:"summary"`
	KeyTakeaways   []string `json:"keyTakeaways"`
}

// MissingFields lists the required fields that are absent or empty.
func (e Enrichment) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(e.RefinedTitle) == "" {
		missing = append(missing, "refinedTitle")
	}
	if strings.TrimSpace(e.RefinedArticle) == "" {
		missing = append(missing, "refinedArticle")
	}
	if strings.TrimSpace(e.Summary) == "" {
		missing = append(missing, "summary")
	}
	if len(e.KeyTakeaways) == 0 {
		missing = append(missing, "keyTakeaways")
	}
	return missing
}

// EnrichedArticle is a successful enrichment result owned by exactly one stub.
type EnrichedArticle struct {
	ID              int64           `json:"id"`
	ArticleID       int64           `json:"article_id"`
	RefinedTitle    string          `json:"refined_title"`
	RefinedArticle  string          `json:"refined_article"`
	Summary         string          `json:"summary"`
	KeyTakeaways    []string        `json:"key_takeaways"`
	OriginalContent json.RawMessage `json:"original_content,omitempty"` // Scraped document as stored
	ProcessedAt     time.Time       `json:"processed_at"`
}

// NewEnrichedArticle builds the row persisted for a successfully enriched stub.
func NewEnrichedArticle(stub ArticleStub, doc ScrapedDocument, e Enrichment, now time.Time) (EnrichedArticle, error) {
	original, err := json.Marshal(doc)
	if err != nil {
		return EnrichedArticle{}, fmt.Errorf("marshal original content: %w", err)
	}
	return EnrichedArticle{
		ArticleID:       stub.ID,
		RefinedTitle:    e.RefinedTitle,
		RefinedArticle:  e.RefinedArticle,
		Summary:         e.Summary,
		KeyTakeaways:    e.KeyTakeaways,
		OriginalContent: original,
		ProcessedAt:     now.UTC(),
	}, nil
}
