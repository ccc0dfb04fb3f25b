package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"curator/internal/core"
)

var (
	// ErrNoJSON means no strategy recognized a JSON payload in the reply.
	ErrNoJSON = errors.New("no valid JSON found")
	// ErrIncomplete means a JSON object parsed but lacked required fields.
	ErrIncomplete = errors.New("enrichment missing required fields")
)

var (
	// Matches ```json ... ``` with arbitrary surrounding whitespace
	fencedJSONRegex = regexp.MustCompile("(?s)```\\s*json\\s*(.*?)\\s*```")

	// Matches a quoted key immediately followed by a colon
	bareKeyRegex = regexp.MustCompile(`"[^"\n]+"\s*:`)
)

// Strategy tries to locate and decode a JSON object in free text.
// matched is false when the strategy does not recognize the input; once a
// strategy matches, its error is final and later strategies are not tried.
type Strategy interface {
	Name() string
	Extract(text string) (raw map[string]json.RawMessage, matched bool, err error)
}

// FencedStrategy reads the first ```json fenced block.
type FencedStrategy struct{}

func (FencedStrategy) Name() string { return "fenced" }

func (FencedStrategy) Extract(text string) (map[string]json.RawMessage, bool, error) {
	m := fencedJSONRegex.FindStringSubmatch(text)
	if m == nil {
		return nil, false, nil
	}
	obj, err := decodeObject(m[1])
	if err != nil {
		return nil, true, fmt.Errorf("fenced JSON block: %w", err)
	}
	return obj, true, nil
}

// BareObjectStrategy sniffs an unfenced object and parses from the first '{' to the last '}'.
type BareObjectStrategy struct{}

func (BareObjectStrategy) Name() string { return "bare" }

func (BareObjectStrategy) Extract(text string) (map[string]json.RawMessage, bool, error) {
	if !bareKeyRegex.MatchString(text) {
		return nil, false, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, true, errors.New("bare JSON object: unbalanced braces")
	}
	obj, err := decodeObject(text[start : end+1])
	if err != nil {
		return nil, true, fmt.Errorf("bare JSON object: %w", err)
	}
	return obj, true, nil
}

func decodeObject(s string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("JSON value is not an object")
	}
	return obj, nil
}

// Chain runs strategies in order and stops at the first one that matches.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain from the given strategies.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// DefaultChain is fenced block first, then bare object.
func DefaultChain() *Chain {
	return NewChain(FencedStrategy{}, BareObjectStrategy{})
}

// Extract returns the decoded object and the name of the strategy that produced it.
func (c *Chain) Extract(text string) (map[string]json.RawMessage, string, error) {
	for _, s := range c.strategies {
		obj, matched, err := s.Extract(text)
		if !matched {
			continue
		}
		if err != nil {
			return nil, s.Name(), err
		}
		return obj, s.Name(), nil
	}
	return nil, "", ErrNoJSON
}

// ExtractEnrichment pulls the structured enrichment out of a model reply.
func (c *Chain) ExtractEnrichment(text string) (core.Enrichment, error) {
	obj, _, err := c.Extract(text)
	if err != nil {
		return core.Enrichment{}, err
	}

	var e core.Enrichment
	decodeField(obj, "refinedTitle", &e.RefinedTitle)
	decodeField(obj, "refinedArticle", &e.RefinedArticle)
	decodeField(obj, "summary", &e.Summary)
	decodeField(obj, "keyTakeaways", &e.KeyTakeaways)
	e.KeyTakeaways = compact(e.KeyTakeaways)

	if missing := e.MissingFields(); len(missing) > 0 {
		return core.Enrichment{}, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return e, nil
}

// ExtractEnrichment runs the default chain.
func ExtractEnrichment(text string) (core.Enrichment, error) {
	return DefaultChain().ExtractEnrichment(text)
}

// decodeField leaves dst at its zero value when the field is absent or of the wrong type.
func decodeField(obj map[string]json.RawMessage, key string, dst any) {
	raw, ok := obj[key]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func compact(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
