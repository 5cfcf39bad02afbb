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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("repoquery.llm.ollama")

// OllamaClient speaks the Ollama /api/chat endpoint with tool calling.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// Ollama API wire structures.
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message   ollamaMessage `json:"message"`
	CreatedAt string        `json:"created_at"`
	Done      bool          `json:"done"`
}

// NewOllamaClient creates a client from OLLAMA_BASE_URL and OLLAMA_MODEL.
//
// Description:
//
//	OLLAMA_BASE_URL defaults to http://localhost:11434 for local use;
//	OLLAMA_MODEL defaults to llama3.2:latest. The HTTP client carries a
//	generous timeout because local models can be slow to first token.
//
// Outputs:
//
//	*OllamaClient - The configured client.
func NewOllamaClient() *OllamaClient {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.2:latest")
		model = "llama3.2:latest"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}
}

// Chat implements Client.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OllamaClient) Chat(ctx context.Context, request *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.message_count", len(request.Messages)),
		attribute.Int("llm.tool_count", len(request.Tools)),
	)

	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: o.convertMessages(request.Messages),
		Stream:   false,
		Tools:    o.convertTools(request),
		Options:  o.buildOptions(request),
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		span.SetStatus(codes.Error, "marshal request")
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	slog.Debug("Ollama chat request",
		slog.Int("message_count", len(payload.Messages)),
		slog.Int("tool_count", len(payload.Tools)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama chat failed", "error", err)
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.SetStatus(codes.Error, "read response")
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, httpResp.Status)
		return nil, fmt.Errorf("ollama chat: %s: %s", httpResp.Status, truncate(string(body), 200))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		span.SetStatus(codes.Error, "decode response")
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	toolCalls := make([]ToolCall, 0, len(chatResp.Message.ToolCalls))
	for _, call := range chatResp.Message.ToolCalls {
		args := call.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		toolCalls = append(toolCalls, ToolCall{
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	duration := time.Since(startTime)
	slog.Debug("Ollama chat response",
		slog.Int("content_len", len(chatResp.Message.Content)),
		slog.Int("tool_calls", len(toolCalls)),
		slog.Duration("duration", duration),
	)

	return &Response{
		Content:   chatResp.Message.Content,
		ToolCalls: toolCalls,
		Duration:  duration,
		Model:     o.model,
	}, nil
}

// Name implements Client.
func (o *OllamaClient) Name() string {
	return "ollama"
}

// Model implements Client.
func (o *OllamaClient) Model() string {
	return o.model
}

// convertMessages converts driver messages to the Ollama wire format.
// Assistant tool calls are carried along so the resent transcript matches
// what the model produced.
func (o *OllamaClient) convertMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		converted := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, call := range msg.ToolCalls {
			var wire ollamaToolCall
			wire.Function.Name = call.Name
			wire.Function.Arguments = call.Arguments
			converted.ToolCalls = append(converted.ToolCalls, wire)
		}
		out = append(out, converted)
	}
	return out
}

// convertTools converts the capability set to the Ollama tool format.
func (o *OllamaClient) convertTools(request *Request) []ollamaTool {
	out := make([]ollamaTool, 0, len(request.Tools))
	for _, def := range request.Tools {
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  toolSchema(def),
			},
		})
	}
	return out
}

// buildOptions maps request parameters to Ollama generation options.
func (o *OllamaClient) buildOptions(request *Request) map[string]any {
	options := make(map[string]any)
	if request.Temperature > 0 {
		options["temperature"] = request.Temperature
	}
	if request.MaxTokens > 0 {
		options["num_predict"] = request.MaxTokens
	}
	if len(options) == 0 {
		return nil
	}
	return options
}
