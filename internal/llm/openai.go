// ABOUTME: OpenAI provider-family implementation of the Client interface
// ABOUTME: Uses chat completions with streaming and JSON-schema structured output

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type openAIClient struct {
	client openai.Client
	model  string
}

func newOpenAIClient(apiKey, model string) *openAIClient {
	return &openAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *openAIClient) params(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
}

func (c *openAIClient) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(prompt))

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), fmt.Errorf("openai stream: %w", err)
	}

	return full.String(), nil
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(prompt))
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) StructuredComplete(ctx context.Context, prompt string, schema Schema, out any) error {
	params := c.params(prompt)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        schema.Name,
				Description: openai.String(schema.Description),
				Schema:      schema.Raw,
				Strict:      openai.Bool(true),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < structuredRetries; attempt++ {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("openai structured completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty response")
			continue
		}
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrBadStructure, lastErr)
}
