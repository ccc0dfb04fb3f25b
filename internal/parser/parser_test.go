package parser

import (
	"errors"
	"strings"
	"testing"
)

const validObject = `{"refinedTitle":"A","refinedArticle":"B","summary":"C","keyTakeaways":["x"]}`

func TestExtractEnrichment(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTitle string
		wantErr   error
	}{
		{
			name:      "fenced block",
			input:     "```json\n" + validObject + "\n```",
			wantTitle: "A",
		},
		{
			name:      "fenced block with surrounding prose and whitespace",
			input:     "Sure!\n\n```  json  \n\n" + validObject + "   \n```\nHope that helps.",
			wantTitle: "A",
		},
		{
			name:      "bare object in prose",
			input:     "Here you go: " + validObject + " Thanks!",
			wantTitle: "A",
		},
		{
			name:    "no JSON at all",
			input:   "Sorry, I cannot help.",
			wantErr: ErrNoJSON,
		},
		{
			name:    "empty reply",
			input:   "",
			wantErr: ErrNoJSON,
		},
		{
			name:    "missing field",
			input:   `{"refinedTitle":"A","refinedArticle":"B","keyTakeaways":["x"]}`,
			wantErr: ErrIncomplete,
		},
		{
			name:    "empty takeaways",
			input:   `{"refinedTitle":"A","refinedArticle":"B","summary":"C","keyTakeaways":[]}`,
			wantErr: ErrIncomplete,
		},
		{
			name:    "blank takeaways only",
			input:   `{"refinedTitle":"A","refinedArticle":"B","summary":"C","keyTakeaways":["  ",""]}`,
			wantErr: ErrIncomplete,
		},
		{
			name:    "wrong field type",
			input:   `{"refinedTitle":1,"refinedArticle":"B","summary":"C","keyTakeaways":["x"]}`,
			wantErr: ErrIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractEnrichment(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.RefinedTitle != tt.wantTitle {
				t.Errorf("RefinedTitle = %q, want %q", got.RefinedTitle, tt.wantTitle)
			}
			if got.RefinedArticle != "B" || got.Summary != "C" {
				t.Errorf("unexpected enrichment: %+v", got)
			}
			if len(got.KeyTakeaways) != 1 || got.KeyTakeaways[0] != "x" {
				t.Errorf("KeyTakeaways = %v", got.KeyTakeaways)
			}
		})
	}
}

func TestExtractEnrichment_FencedParseErrorIsTerminal(t *testing.T) {
	// The fenced block is broken but a valid bare object follows; the chain must not fall through.
	input := "```json\n{\"refinedTitle\": oops}\n```\n" + validObject

	_, err := ExtractEnrichment(input)
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if errors.Is(err, ErrNoJSON) || errors.Is(err, ErrIncomplete) {
		t.Errorf("expected a decode error, got %v", err)
	}
	if !strings.Contains(err.Error(), "fenced") {
		t.Errorf("error should name the fenced strategy: %v", err)
	}
}

func TestExtractEnrichment_BareParseErrorIsTerminal(t *testing.T) {
	input := `Result: {"refinedTitle": "A", "summary": } trailing }`

	_, err := ExtractEnrichment(input)
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if !strings.Contains(err.Error(), "bare") {
		t.Errorf("error should name the bare strategy: %v", err)
	}
}

func TestExtractEnrichment_BareKeyWithoutBraces(t *testing.T) {
	_, err := ExtractEnrichment(`"refinedTitle": "A"`)
	if err == nil || errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected a terminal bare-object failure, got %v", err)
	}
}

func TestChain_ReportsStrategy(t *testing.T) {
	chain := DefaultChain()

	_, name, err := chain.Extract("```json\n" + validObject + "\n```")
	if err != nil || name != "fenced" {
		t.Errorf("expected fenced strategy, got %q (%v)", name, err)
	}

	_, name, err = chain.Extract("prefix " + validObject)
	if err != nil || name != "bare" {
		t.Errorf("expected bare strategy, got %q (%v)", name, err)
	}
}

func TestExtractEnrichment_TrimsTakeaways(t *testing.T) {
	input := `{"refinedTitle":"A","refinedArticle":"B","summary":"C","keyTakeaways":[" one ","","two"]}`
	got, err := ExtractEnrichment(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.KeyTakeaways) != 2 || got.KeyTakeaways[0] != "one" || got.KeyTakeaways[1] != "two" {
		t.Errorf("KeyTakeaways = %q", got.KeyTakeaways)
	}
}
