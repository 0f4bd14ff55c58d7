// ABOUTME: LLM capability interface and the supported-model registry
// ABOUTME: Providers implement streaming, one-shot, and structured completion

package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrBadStructure is returned when a provider cannot produce output matching
// a requested schema after its retry policy is exhausted.
var ErrBadStructure = errors.New("model output did not match requested structure")

// structuredRetries is how many attempts a provider makes at schema-shaped
// output before giving up. Callers do not retry on top of this.
const structuredRetries = 3

// Schema describes the JSON shape a structured completion must produce.
type Schema struct {
	Name        string
	Description string
	// Raw is a JSON-schema object ("type", "properties", "required", ...).
	Raw map[string]any
}

// Client is the language-model capability. One implementation exists per
// provider family; callers depend only on these three operations.
type Client interface {
	// Stream completes prompt incrementally, invoking onDelta for each text
	// chunk in generation order. A non-nil error from onDelta aborts the
	// stream and is returned. The full generated text is returned on success.
	Stream(ctx context.Context, prompt string, onDelta func(text string) error) (string, error)

	// Complete returns the full completion of prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// StructuredComplete completes prompt constrained to schema and decodes
	// the result into out. Retries malformed output internally; fails with
	// ErrBadStructure once retries are exhausted.
	StructuredComplete(ctx context.Context, prompt string, schema Schema, out any) error
}

// Config carries provider credentials.
type Config struct {
	OpenAIKey    string
	AnthropicKey string
}

type providerFamily string

const (
	familyOpenAI    providerFamily = "openai"
	familyAnthropic providerFamily = "anthropic"
)

type modelInfo struct {
	family     providerFamily
	upstreamID string
}

// registry maps the wire-level model names to provider families.
var registry = map[string]modelInfo{
	"gpt-4o":            {familyOpenAI, "gpt-4o"},
	"gpt-4o-mini":       {familyOpenAI, "gpt-4o-mini"},
	"claude-3-5-sonnet": {familyAnthropic, "claude-3-5-sonnet-latest"},
	"claude-3-haiku":    {familyAnthropic, "claude-3-haiku-20240307"},
}

// IsSupported reports whether model is a known model name.
func IsSupported(model string) bool {
	_, ok := registry[model]
	return ok
}

// SupportedModels returns the known model names, sorted.
func SupportedModels() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns a Client for the given model name.
func New(model string, cfg Config) (Client, error) {
	info, ok := registry[model]
	if !ok {
		return nil, fmt.Errorf("unsupported model %q", model)
	}

	switch info.family {
	case familyOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("model %q requires OPENAI_API_KEY", model)
		}
		return newOpenAIClient(cfg.OpenAIKey, info.upstreamID), nil
	case familyAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("model %q requires ANTHROPIC_API_KEY", model)
		}
		return newAnthropicClient(cfg.AnthropicKey, info.upstreamID), nil
	default:
		return nil, fmt.Errorf("unsupported model %q", model)
	}
}
