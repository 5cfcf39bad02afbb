// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/repoquery/services/repoquery/agent/llm"
	"github.com/AleutianAI/repoquery/services/repoquery/lsp"
	"github.com/AleutianAI/repoquery/services/repoquery/tools"
)

// stubSymbolSource satisfies lsp.SymbolSource with empty results.
type stubSymbolSource struct{}

func (s *stubSymbolSource) DocumentSymbols(ctx context.Context, relPath string) ([]lsp.DocumentSymbol, error) {
	return nil, nil
}

func (s *stubSymbolSource) References(ctx context.Context, relPath string, row, column int) ([]lsp.Reference, error) {
	return nil, nil
}

// newTestSession builds a session over a small temp repository.
func newTestSession(t *testing.T) *Session {
	t.Helper()

	root := t.TempDir()
	err := os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo(): pass\n"), 0o644)
	require.NoError(t, err)

	registry := tools.NewRegistry()
	tools.RegisterRepositoryTools(registry, root, &stubSymbolSource{})

	session, err := NewSession(registry, nil)
	require.NoError(t, err)
	return session
}

// -----------------------------------------------------------------------------
// Driver Tests
// -----------------------------------------------------------------------------

func TestDriver_Run_ImmediateAnswer(t *testing.T) {
	client := llm.NewMockClient().QueueFinalResponse("The project parses markdown.")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "What does this project do?")
	require.NoError(t, err)

	assert.Equal(t, "The project parses markdown.", result.Answer)
	assert.False(t, result.Exhausted)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, session.ID, result.SessionID)
	assert.Equal(t, 1, result.Metrics.ChatCalls)
	assert.Equal(t, 0, result.Metrics.ToolCalls)
}

func TestDriver_Run_SeedsTranscript(t *testing.T) {
	client := llm.NewMockClient().QueueFinalResponse("done")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	_, err = driver.Run(context.Background(), session, "where is foo defined?")
	require.NoError(t, err)

	messages := session.Messages()
	require.GreaterOrEqual(t, len(messages), 3)

	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "expert code manipulation tool")

	assert.Equal(t, llm.RoleAssistant, messages[1].Role)
	assert.Contains(t, messages[1].Content, "a.py")

	assert.Equal(t, llm.RoleUser, messages[2].Role)
	assert.Equal(t, "where is foo defined?", messages[2].Content)
}

func TestDriver_Run_SendsCapabilitySet(t *testing.T) {
	client := llm.NewMockClient().QueueFinalResponse("done")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	_, err = driver.Run(context.Background(), session, "anything")
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Request.Tools, 7)
}

func TestDriver_Run_ToolCallThenAnswer(t *testing.T) {
	client := llm.NewMockClient().
		QueueToolCall("get_file_source", map[string]any{"file_path": "a.py"}).
		QueueFinalResponse("foo is a no-op function.")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "what is foo?")
	require.NoError(t, err)

	assert.Equal(t, "foo is a no-op function.", result.Answer)
	assert.False(t, result.Exhausted)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, result.Metrics.ToolCalls)
	assert.Equal(t, 0, result.Metrics.ToolErrors)

	var toolMsg *llm.Message
	messages := session.Messages()
	for i, msg := range messages {
		if msg.Role == llm.RoleTool {
			toolMsg = &messages[i]
			break
		}
	}
	require.NotNil(t, toolMsg, "expected a tool message in the transcript")
	assert.Contains(t, toolMsg.Content, "The contents of a.py")
	assert.Contains(t, toolMsg.Content, "def foo(): pass")
	assert.Equal(t, "call_0", toolMsg.ToolCallID,
		"tool message should answer the assistant call that requested it")
}

func TestDriver_Run_UnknownToolContinues(t *testing.T) {
	client := llm.NewMockClient().
		QueueToolCall("no_such_tool", map[string]any{}).
		QueueFinalResponse("recovered")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "try a bad tool")
	require.NoError(t, err)

	assert.Equal(t, "recovered", result.Answer)
	assert.Equal(t, 1, result.Metrics.ToolErrors)

	found := false
	for _, msg := range session.Messages() {
		if msg.Role == llm.RoleTool && strings.Contains(msg.Content, "no_such_tool") {
			assert.Contains(t, msg.Content, "failed")
			found = true
		}
	}
	assert.True(t, found, "expected a failure tool message")
}

func TestDriver_Run_BadArgumentsContinues(t *testing.T) {
	client := llm.NewMockClient().
		QueueToolCall("get_file_source", map[string]any{"file_path": 42}).
		QueueFinalResponse("recovered")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "bad arguments")
	require.NoError(t, err)

	assert.Equal(t, "recovered", result.Answer)
	assert.Equal(t, 1, result.Metrics.ToolErrors)
}

func TestDriver_Run_ExhaustsIterationBudget(t *testing.T) {
	// The model never stops asking for tools.
	client := llm.NewMockClient().WithResponseFunc(func(req *llm.Request) (*llm.Response, error) {
		return &llm.Response{
			ToolCalls: []llm.ToolCall{{
				Name:      "list_files_in_repository",
				Arguments: map[string]any{},
			}},
		}, nil
	})
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "loop forever")
	require.NoError(t, err)

	assert.True(t, result.Exhausted)
	assert.Empty(t, result.Answer)
	assert.Equal(t, 10, result.Iterations)
	assert.Equal(t, 10, result.Metrics.ChatCalls)
}

func TestDriver_Run_CachedToolCall(t *testing.T) {
	client := llm.NewMockClient().
		QueueToolCall("get_file_source", map[string]any{"file_path": "a.py"}).
		QueueToolCall("get_file_source", map[string]any{"file_path": "a.py"}).
		QueueFinalResponse("done")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "read twice")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metrics.ToolCalls)
	assert.Equal(t, 1, result.Metrics.CacheHits)
}

func TestDriver_Run_SessionRunsOnce(t *testing.T) {
	client := llm.NewMockClient().
		QueueFinalResponse("first answer").
		QueueFinalResponse("second answer")
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	result, err := driver.Run(context.Background(), session, "what is foo?")
	require.NoError(t, err)
	assert.Equal(t, "first answer", result.Answer)

	// A second run would re-seed the already seeded transcript.
	_, err = driver.Run(context.Background(), session, "what is foo?")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, client.CallCount())
}

func TestDriver_Run_EmptyQuestion(t *testing.T) {
	driver, err := NewDriver(llm.NewMockClient())
	require.NoError(t, err)

	session := newTestSession(t)
	_, err = driver.Run(context.Background(), session, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestDriver_Run_ChatError(t *testing.T) {
	client := llm.NewMockClient().WithError(errors.New("connection refused"))
	driver, err := NewDriver(client)
	require.NoError(t, err)

	session := newTestSession(t)
	_, err = driver.Run(context.Background(), session, "anything")
	assert.ErrorIs(t, err, ErrChatFailed)
}

func TestDriver_Run_WithoutFileListing(t *testing.T) {
	client := llm.NewMockClient().QueueFinalResponse("done")
	driver, err := NewDriver(client, WithoutFileListing())
	require.NoError(t, err)

	session := newTestSession(t)
	_, err = driver.Run(context.Background(), session, "question")
	require.NoError(t, err)

	messages := session.Messages()
	require.GreaterOrEqual(t, len(messages), 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
}

func TestNewDriver_NilClient(t *testing.T) {
	_, err := NewDriver(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

// -----------------------------------------------------------------------------
// Session Tests
// -----------------------------------------------------------------------------

func TestNewSession_NilRegistry(t *testing.T) {
	_, err := NewSession(nil, nil)
	assert.ErrorIs(t, err, ErrNilRegistry)
}

func TestNewSession_Defaults(t *testing.T) {
	session := newTestSession(t)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 10, session.Config().MaxIterations)
	assert.Empty(t, session.Messages())
	assert.Zero(t, session.Loops())
}

func TestSessionConfig_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultSessionConfig().Validate())
	})

	t.Run("zero iterations rejected", func(t *testing.T) {
		cfg := &SessionConfig{MaxIterations: 0}
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative max tokens rejected", func(t *testing.T) {
		cfg := &SessionConfig{MaxIterations: 10, MaxTokens: -1}
		assert.Error(t, cfg.Validate())
	})

	t.Run("temperature out of range rejected", func(t *testing.T) {
		cfg := &SessionConfig{MaxIterations: 10, Temperature: 1.5}
		assert.Error(t, cfg.Validate())
	})
}
