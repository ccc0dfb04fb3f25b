package llm

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"google.golang.org/genai"

	"curator/internal/logger"
)

type mockGenerator struct {
	response string
	err      error
	delay    time.Duration
	calls    int
}

func (m *mockGenerator) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func TestNewClient_NoAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewClient_Success(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient(context.Background(), Config{APIKey: apiKey})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.GetModelName() != DefaultModel {
		t.Errorf("Expected default model %s, got %s", DefaultModel, client.GetModelName())
	}
	if client.gClient == nil {
		t.Error("Client gClient should not be nil")
	}
}

func TestBuildConfig(t *testing.T) {
	if cfg := buildConfig(TextGenerationOptions{}, TextGenerationOptions{}); cfg != nil {
		t.Errorf("Expected nil config when nothing is set, got %+v", cfg)
	}

	cfg := buildConfig(TextGenerationOptions{}, TextGenerationOptions{MaxTokens: 1024, Temperature: 0.4})
	if cfg == nil || cfg.MaxOutputTokens != 1024 || cfg.Temperature == nil || *cfg.Temperature != 0.4 {
		t.Errorf("Expected defaults to apply, got %+v", cfg)
	}

	schema := &genai.Schema{Type: genai.TypeObject}
	cfg = buildConfig(TextGenerationOptions{ResponseSchema: schema}, TextGenerationOptions{})
	if cfg == nil || cfg.ResponseMIMEType != "application/json" || cfg.ResponseSchema != schema {
		t.Errorf("Expected JSON response config, got %+v", cfg)
	}

	cfg = buildConfig(TextGenerationOptions{MaxTokens: 10}, TextGenerationOptions{MaxTokens: 1024})
	if cfg.MaxOutputTokens != 10 {
		t.Errorf("Expected option override, got %d", cfg.MaxOutputTokens)
	}
}

func TestTracedClient_PassThrough(t *testing.T) {
	inner := &mockGenerator{response: "hello"}
	tc := NewTracedClient(inner, 0, time.Second, logger.Discard())

	got, err := tc.GenerateText(context.Background(), "prompt", TextGenerationOptions{})
	if err != nil || got != "hello" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
	if tc.GetUnderlyingClient() != inner {
		t.Error("Expected underlying client to be returned")
	}
}

func TestTracedClient_Error(t *testing.T) {
	boom := errors.New("quota exhausted")
	tc := NewTracedClient(&mockGenerator{err: boom}, 0, 0, logger.Discard())

	_, err := tc.GenerateText(context.Background(), "prompt", TextGenerationOptions{})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped error, got %v", err)
	}
}

func TestTracedClient_Timeout(t *testing.T) {
	tc := NewTracedClient(&mockGenerator{response: "late", delay: time.Second}, 0, 20*time.Millisecond, logger.Discard())

	_, err := tc.GenerateText(context.Background(), "prompt", TextGenerationOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
