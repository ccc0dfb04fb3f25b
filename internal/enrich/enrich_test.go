package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"curator/internal/core"
	"curator/internal/llm"
)

type MockGenerator struct {
	reply       string
	err         error
	lastPrompt  string
	lastOptions llm.TextGenerationOptions
}

func (m *MockGenerator) GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error) {
	m.lastPrompt = prompt
	m.lastOptions = options
	return m.reply, m.err
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(core.CategoryAI, "Model release", "A new model shipped", "Body text here")

	for _, want := range []string{"ai section", "Model release", "A new model shipped", "Body text here",
		`"refinedTitle"`, `"refinedArticle"`, `"summary"`, `"keyTakeaways"`, "3-4 sentences", "5-7"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_EmptyContent(t *testing.T) {
	prompt := BuildPrompt(core.CategoryHealth, "T", "S", "   ")
	if !strings.Contains(prompt, noContentPlaceholder) {
		t.Errorf("expected placeholder for empty content, got %q", prompt)
	}
}

func TestEnricher_Enrich(t *testing.T) {
	gen := &MockGenerator{reply: "```json\n{}\n```"}
	e := New(gen)

	stub := core.ArticleStub{ID: 3, Title: "Fed holds rates", Snippet: "No change", Category: core.CategoryBusiness}
	reply, err := e.Enrich(context.Background(), stub, &core.ScrapedDocument{Title: "x", Content: "Full text"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if reply != gen.reply {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(gen.lastPrompt, "Fed holds rates") || !strings.Contains(gen.lastPrompt, "Full text") {
		t.Errorf("prompt did not embed stub and content: %q", gen.lastPrompt)
	}
	if gen.lastOptions.ResponseSchema != nil {
		t.Error("schema should only be sent when structured output is enabled")
	}
}

func TestEnricher_StructuredOutput(t *testing.T) {
	gen := &MockGenerator{reply: "{}"}
	e := New(gen, WithStructuredOutput(true))

	if _, err := e.Enrich(context.Background(), core.ArticleStub{}, nil); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	schema := gen.lastOptions.ResponseSchema
	if schema == nil || len(schema.Required) != 4 {
		t.Fatalf("expected enrichment schema, got %+v", schema)
	}
	if !strings.Contains(gen.lastPrompt, noContentPlaceholder) {
		t.Error("nil document should use the placeholder")
	}
}

func TestEnricher_Error(t *testing.T) {
	boom := errors.New("model overloaded")
	e := New(&MockGenerator{err: boom})

	_, err := e.Enrich(context.Background(), core.ArticleStub{}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
