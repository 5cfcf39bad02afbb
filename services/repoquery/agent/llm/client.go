// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm defines the external chat service contract for the
// conversation driver.
//
// The driver depends only on the Client interface, so the chat backend can
// be a local Ollama instance, an OpenAI-compatible endpoint, or a scripted
// mock in tests.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"sort"
	"time"

	"github.com/AleutianAI/repoquery/services/repoquery/tools"
)

// Client defines the interface for chat completions with tool calling.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Chat sends the full conversation and capability set to the model.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - Assistant content plus any requested tool calls
	//   error - Non-nil if the request failed
	Chat(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "ollama", "openai").
	Name() string

	// Model returns the model identifier in use.
	Model() string
}

// Request represents a chat completion request.
type Request struct {
	// Messages is the full ordered conversation history, including the
	// system message.
	Messages []Message `json:"messages"`

	// Tools defines the capabilities available to the model.
	Tools []tools.ToolDefinition `json:"tools,omitempty"`

	// MaxTokens limits the response length (0 = provider default).
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents one conversation message.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls contains tool invocations (assistant messages only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the assistant tool call it
	// answers (tool messages only). Empty when the provider does not
	// assign call identifiers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider's identifier for this call, when it assigns one.
	ID string `json:"id,omitempty"`

	// Name is the capability name.
	Name string `json:"name"`

	// Arguments maps argument names to values. Providers that transmit
	// arguments as a JSON string have them decoded by the client.
	Arguments map[string]any `json:"arguments"`
}

// Response represents a chat completion response.
type Response struct {
	// Content is the assistant's text response.
	Content string `json:"content"`

	// ToolCalls contains any tool calls the model requests, in the order
	// the model returned them.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response requests at least one tool call.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// toolSchema converts a tool definition into a JSON Schema parameter
// object, the shape both the Ollama and OpenAI tool APIs expect.
func toolSchema(def tools.ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))

	for name, param := range def.Parameters {
		properties[name] = map[string]any{
			"type":        string(param.Type),
			"description": param.Description,
		}
		if param.Required {
			required = append(required, name)
		}
	}

	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// truncate shortens a string for log previews.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
