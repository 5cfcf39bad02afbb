// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the conversation driver.
//
// The driver owns a session's message transcript, sends it to the chat
// service together with the full capability set, dispatches any tool calls
// the model requests, appends the results as tool messages, and repeats
// until the model answers without tools or the iteration budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/repoquery/services/repoquery/agent/llm"
)

// listFilesCapability is the capability invoked once up front to seed the
// transcript with the repository file listing.
const listFilesCapability = "list_files_in_repository"

// RunResult is the outcome of a driver run.
type RunResult struct {
	// SessionID identifies the session that produced this result.
	SessionID string `json:"session_id"`

	// Answer is the assistant content of the final response. Empty when
	// the iteration budget was exhausted without a final answer.
	Answer string `json:"answer"`

	// Exhausted is true when the loop hit the iteration cap while the
	// model was still requesting tools. It distinguishes an empty answer
	// caused by budget exhaustion from a genuinely empty answer.
	Exhausted bool `json:"exhausted"`

	// Iterations is the number of chat round trips performed.
	Iterations int `json:"iterations"`

	// Duration is the total wall time of the run.
	Duration time.Duration `json:"duration"`

	// Metrics holds the session counters at the end of the run.
	Metrics SessionMetrics `json:"metrics"`
}

// Driver runs question-answering sessions against a chat client.
//
// Thread Safety:
//
//	Driver is safe for concurrent use with different sessions. Each
//	session is processed strictly sequentially: the driver blocks on
//	every chat call and every tool invocation, and tool calls within one
//	response are dispatched in the order the model returned them.
type Driver struct {
	// client is the chat backend.
	client llm.Client

	// seedFileListing controls whether the transcript is seeded with an
	// assistant message listing the repository files.
	seedFileListing bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithoutFileListing disables the file listing seed message.
func WithoutFileListing() DriverOption {
	return func(d *Driver) {
		d.seedFileListing = false
	}
}

// NewDriver creates a conversation driver.
//
// Inputs:
//
//	client - The chat backend
//	opts - Optional configuration
//
// Outputs:
//
//	*Driver - The new driver
//	error - Non-nil if the client is nil
func NewDriver(client llm.Client, opts ...DriverOption) (*Driver, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	d := &Driver{
		client:          client,
		seedFileListing: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run processes one question to completion.
//
// Description:
//
//	Seeds the transcript with the system prompt, an assistant message
//	listing the repository files, and the user question. Then loops:
//	send the transcript and capability set to the chat service, dispatch
//	any requested tool calls through the session executor, append the
//	results as tool messages, and repeat. The loop ends when a response
//	contains no tool calls or after the session's iteration cap, whichever
//	comes first. Tool dispatch failures never abort the run; the failure
//	text is appended as a tool message so the model can see its mistake
//	and retry differently.
//
//	A session backs exactly one run. Running the same session again
//	would re-seed its transcript, so a second Run returns ErrSessionClosed.
//
// Inputs:
//
//	ctx - Context for cancellation
//	session - The session to run
//	question - The user's question
//
// Outputs:
//
//	*RunResult - The execution result
//	error - Non-nil if the question is empty, the session was already
//	run, or the chat service failed
//
// Thread Safety: This method is safe for concurrent use with different sessions.
func (d *Driver) Run(ctx context.Context, session *Session, question string) (*RunResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if err := session.begin(); err != nil {
		return nil, err
	}

	start := time.Now()
	d.seed(ctx, session, question)

	definitions := session.Executor().Definitions()
	cfg := session.Config()

	var response *llm.Response
	madeToolCalls := true

	for madeToolCalls && session.Loops() < cfg.MaxIterations {
		request := &llm.Request{
			Messages:    session.Messages(),
			Tools:       definitions,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}

		slog.Info("Sending chat request",
			slog.String("session_id", session.ID),
			slog.Int("iteration", session.Loops()+1),
			slog.Int("message_count", len(request.Messages)),
			slog.Int("tool_count", len(request.Tools)),
		)

		var err error
		response, err = d.client.Chat(ctx, request)
		if err != nil {
			slog.Error("Chat request failed",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %v", ErrChatFailed, err)
		}
		session.recordChatCall()

		slog.Info("Chat response received",
			slog.String("session_id", session.ID),
			slog.Bool("has_tool_calls", response.HasToolCalls()),
			slog.Int("content_len", len(response.Content)),
			slog.Duration("duration", response.Duration),
		)

		session.Append(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		madeToolCalls = response.HasToolCalls()
		if madeToolCalls {
			d.dispatchToolCalls(ctx, session, response.ToolCalls)
		}

		session.incrementLoops()
	}

	exhausted := madeToolCalls
	answer := ""
	if response != nil && !exhausted {
		answer = response.Content
	}

	result := &RunResult{
		SessionID:  session.ID,
		Answer:     answer,
		Exhausted:  exhausted,
		Iterations: session.Loops(),
		Duration:   time.Since(start),
		Metrics:    session.Metrics(),
	}

	slog.Info("Session complete",
		slog.String("session_id", session.ID),
		slog.Int("iterations", result.Iterations),
		slog.Bool("exhausted", result.Exhausted),
		slog.Int("tool_calls", result.Metrics.ToolCalls),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// seed populates the transcript with the system prompt, the optional file
// listing message, and the user question.
func (d *Driver) seed(ctx context.Context, session *Session, question string) {
	session.Append(llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	if d.seedFileListing {
		// Goes through the executor so the listing is already cached if
		// the model asks for it again.
		result, err := session.Executor().Execute(ctx, listFilesCapability, map[string]any{})
		if err == nil && result.Success {
			if files, ok := result.Output.([]string); ok {
				session.Append(llm.Message{
					Role:    llm.RoleAssistant,
					Content: fileListingMessage(files),
				})
			}
		} else {
			slog.Warn("File listing seed skipped",
				slog.String("session_id", session.ID),
			)
		}
	}

	session.Append(llm.Message{Role: llm.RoleUser, Content: question})
}

// dispatchToolCalls invokes each requested tool in order and appends one
// tool message per call.
func (d *Driver) dispatchToolCalls(ctx context.Context, session *Session, calls []llm.ToolCall) {
	for _, call := range calls {
		content, failed, cached := d.dispatch(ctx, session, call)

		slog.Info("Tool call dispatched",
			slog.String("session_id", session.ID),
			slog.String("tool", call.Name),
			slog.Bool("failed", failed),
			slog.Bool("cached", cached),
		)

		session.recordToolCall(failed, cached)
		session.Append(llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
}

// dispatch runs one tool call and serializes its outcome.
//
// Failures are folded into the returned content rather than propagated.
// The model reads the failure text and may correct its arguments on the
// next iteration.
func (d *Driver) dispatch(ctx context.Context, session *Session, call llm.ToolCall) (content string, failed, cached bool) {
	result, err := session.Executor().Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return fmt.Sprintf("tool call %s failed: %v", call.Name, err), true, false
	}

	payload, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Sprintf("tool call %s produced an unserializable result: %v", call.Name, err), true, result.Cached
	}

	return string(payload), false, result.Cached
}
