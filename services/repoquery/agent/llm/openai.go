// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient adapts an OpenAI-compatible chat endpoint to Client.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client from OPENAI_API_KEY and OPENAI_MODEL.
//
// Description:
//
//	The API key is read from the environment, falling back to the mounted
//	secret at /run/secrets/openai_api_key. The model defaults to
//	gpt-4o-mini.
//
// Outputs:
//
//	*OpenAIClient - The configured client.
//	error - Non-nil if no API key is available.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the OpenAI API key from mounted secret")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Chat implements Client.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) Chat(ctx context.Context, request *Request) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.convertMessages(request.Messages),
		Tools:    o.convertTools(request),
	}
	if request.Temperature > 0 {
		req.Temperature = float32(request.Temperature)
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}

	startTime := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI chat failed", "error", err)
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, fmt.Errorf("openai chat: no choices returned")
	}

	choice := resp.Choices[0]
	toolCalls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				slog.Warn("Undecodable tool call arguments",
					"tool", call.Function.Name, "error", err)
				args = map[string]any{}
			}
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	slog.Debug("OpenAI chat response",
		slog.String("finish_reason", string(choice.FinishReason)),
		slog.Int("tool_calls", len(toolCalls)),
	)

	return &Response{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Duration:  time.Since(startTime),
		Model:     resp.Model,
	}, nil
}

// Name implements Client.
func (o *OpenAIClient) Name() string {
	return "openai"
}

// Model implements Client.
func (o *OpenAIClient) Model() string {
	return o.model
}

// convertMessages converts driver messages to the OpenAI wire format.
//
// Assistant tool calls and the tool_call_id on tool messages must survive
// the round trip; the API rejects a tool message that does not answer a
// preceding assistant tool call with a matching identifier.
func (o *OpenAIClient) convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				slog.Warn("Unserializable tool call arguments",
					"tool", call.Name, "error", err)
				args = []byte("{}")
			}
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

// convertTools converts the capability set to the OpenAI tool format.
func (o *OpenAIClient) convertTools(request *Request) []openai.Tool {
	out := make([]openai.Tool, 0, len(request.Tools))
	for _, def := range request.Tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  toolSchema(def),
			},
		})
	}
	return out
}
