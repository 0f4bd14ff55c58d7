// ABOUTME: Anthropic provider-family implementation of the Client interface
// ABOUTME: Streams via the Messages API; structured output via a forced tool call

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type anthropicClient struct {
	client anthropic.Client
	model  string
}

func newAnthropicClient(apiKey, model string) *anthropicClient {
	return &anthropicClient{
		client: anthropic.NewClient(aoption.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *anthropicClient) params(prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

func (c *anthropicClient) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(prompt))

	var full strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				full.WriteString(delta.Text)
				if err := onDelta(delta.Text); err != nil {
					return full.String(), err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), fmt.Errorf("anthropic stream: %w", err)
	}

	return full.String(), nil
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, c.params(prompt))
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var full strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			full.WriteString(text.Text)
		}
	}
	return full.String(), nil
}

// StructuredComplete forces a single tool call whose input schema is the
// requested shape, then decodes the tool input.
func (c *anthropicClient) StructuredComplete(ctx context.Context, prompt string, schema Schema, out any) error {
	params := c.params(prompt)

	var required []string
	if raw, ok := schema.Raw["required"].([]string); ok {
		required = raw
	}
	tool := anthropic.ToolParam{
		Name:        schema.Name,
		Description: anthropic.String(schema.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: schema.Raw["properties"],
			Required:   required,
		},
	}
	params.Tools = []anthropic.ToolUnionParam{{OfTool: &tool}}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: schema.Name},
	}

	var lastErr error
	for attempt := 0; attempt < structuredRetries; attempt++ {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return fmt.Errorf("anthropic structured completion: %w", err)
		}

		var input json.RawMessage
		for _, block := range msg.Content {
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				input = tu.Input
				break
			}
		}
		if len(input) == 0 {
			lastErr = fmt.Errorf("no tool use block in response")
			continue
		}
		if err := json.Unmarshal(input, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrBadStructure, lastErr)
}
