package llm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"curator/internal/throttle"
)

// TracedClient wraps a Generator with pacing, a per-call timeout and latency logging.
type TracedClient struct {
	client  Generator
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger
}

// NewTracedClient wraps client. Zero requestsPerMinute or timeout disables that control.
func NewTracedClient(client Generator, requestsPerMinute int, timeout time.Duration, log *slog.Logger) *TracedClient {
	if log == nil {
		log = slog.Default()
	}
	return &TracedClient{
		client:  client,
		limiter: throttle.PerMinute(requestsPerMinute),
		timeout: timeout,
		log:     log,
	}
}

// GetUnderlyingClient returns the wrapped generator
func (tc *TracedClient) GetUnderlyingClient() Generator {
	return tc.client
}

// GenerateText waits for a token, calls the wrapped generator and records the outcome
func (tc *TracedClient) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if err := throttle.Wait(ctx, tc.limiter, "gemini"); err != nil {
		return "", err
	}

	callCtx, cancel := throttle.WithTimeout(ctx, tc.timeout)
	defer cancel()

	startTime := time.Now()
	result, err := tc.client.GenerateText(callCtx, prompt, options)
	latency := time.Since(startTime)

	if err != nil {
		tc.log.Warn("text generation failed",
			"latency_ms", latency.Milliseconds(),
			"prompt_chars", len(prompt),
			"error", err)
		return "", err
	}

	tc.log.Debug("text generation completed",
		"latency_ms", latency.Milliseconds(),
		"prompt_chars", len(prompt),
		"response_chars", len(result))
	return result, nil
}
