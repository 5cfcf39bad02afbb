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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/repoquery/services/repoquery/agent/llm"
	"github.com/AleutianAI/repoquery/services/repoquery/tools"
)

// SessionConfig holds all tunable parameters for a session.
//
// Thread Safety:
//
//	SessionConfig is immutable after creation. Modifications require
//	creating a new config.
type SessionConfig struct {
	// MaxIterations is the hard bound on conversation loop iterations.
	// The loop terminates after this many model round trips even if the
	// model keeps requesting tools.
	// Default: 10
	MaxIterations int `json:"max_iterations"`

	// MaxTokens limits response length per chat call (0 = provider default).
	MaxTokens int `json:"max_tokens"`

	// Temperature controls model randomness (0.0-1.0).
	Temperature float64 `json:"temperature"`
}

// DefaultSessionConfig returns production-ready default configuration.
//
// Outputs:
//
//	*SessionConfig - Configuration with default values
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		MaxIterations: 10,
		MaxTokens:     0,
		Temperature:   0,
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//
//	error - Non-nil if configuration is invalid
func (c *SessionConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MaxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("MaxTokens must not be negative, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("Temperature must be in [0, 1], got %f", c.Temperature)
	}
	return nil
}

// SessionMetrics tracks counters accumulated during a session run.
type SessionMetrics struct {
	// ChatCalls is the number of chat service round trips.
	ChatCalls int `json:"chat_calls"`

	// ToolCalls is the number of tool invocations dispatched.
	ToolCalls int `json:"tool_calls"`

	// ToolErrors is the number of tool invocations that failed.
	ToolErrors int `json:"tool_errors"`

	// CacheHits is the number of tool results served from the session cache.
	CacheHits int `json:"cache_hits"`
}

// Session holds the state of one question-answering conversation.
//
// A session owns its message transcript, its loop counter, and its tool
// executor with its memoization cache. Sessions are created at the start
// of a query and discarded when the query completes. Nothing is persisted.
//
// Thread Safety:
//
//	Session is safe for concurrent use, though the driver processes one
//	session strictly sequentially.
type Session struct {
	mu sync.RWMutex

	// ID is the unique session identifier.
	ID string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// messages is the append-only conversation transcript.
	messages []llm.Message

	// loops counts completed driver iterations.
	loops int

	// closed marks the session as consumed by a driver run.
	closed bool

	// executor dispatches and memoizes tool invocations for this session.
	executor *tools.Executor

	// config holds the session parameters.
	config *SessionConfig

	// metrics accumulates counters for the run.
	metrics SessionMetrics
}

// NewSession creates a session bound to a tool registry.
//
// Description:
//
//	The registry's tools are wrapped in a fresh executor whose memoization
//	cache lives exactly as long as the session. Two sessions never share
//	a cache.
//
// Inputs:
//
//	registry - The capability registry for this session's repository
//	config - Session parameters (nil uses defaults)
//
// Outputs:
//
//	*Session - The new session
//	error - Non-nil if the registry is nil or the config is invalid
func NewSession(registry *tools.Registry, config *SessionConfig) (*Session, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if config == nil {
		config = DefaultSessionConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		messages:  make([]llm.Message, 0, 8),
		executor:  tools.NewExecutor(registry),
		config:    config,
	}, nil
}

// Config returns the session configuration.
func (s *Session) Config() *SessionConfig {
	return s.config
}

// Executor returns the session's tool executor.
func (s *Session) Executor() *tools.Executor {
	return s.executor
}

// Append adds a message to the transcript.
func (s *Session) Append(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// begin marks the session as consumed.
//
// A session carries exactly one seeded transcript, so it can back at most
// one driver run. Returns ErrSessionClosed if the session was already
// consumed.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return nil
}

// Loops returns the number of completed iterations.
func (s *Session) Loops() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loops
}

// incrementLoops advances the loop counter and returns the new value.
func (s *Session) incrementLoops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops++
	return s.loops
}

// Metrics returns a snapshot of the session counters.
func (s *Session) Metrics() SessionMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// recordChatCall increments the chat call counter.
func (s *Session) recordChatCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ChatCalls++
}

// recordToolCall increments the tool call counters.
func (s *Session) recordToolCall(failed, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ToolCalls++
	if failed {
		s.metrics.ToolErrors++
	}
	if cached {
		s.metrics.CacheHits++
	}
}
