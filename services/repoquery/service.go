// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repoquery provides the repository question-answering HTTP service.
//
// The service exposes one endpoint that accepts a natural-language question
// about a configured code repository and returns the answer produced by a
// tool-calling conversation with an LLM. The repository path is fixed by
// server configuration, never by the request.
package repoquery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/repoquery/services/repoquery/agent"
	"github.com/AleutianAI/repoquery/services/repoquery/agent/llm"
	"github.com/AleutianAI/repoquery/services/repoquery/lsp"
	"github.com/AleutianAI/repoquery/services/repoquery/tools"
)

// ServiceVersion is the repoquery service version.
const ServiceVersion = "0.1.0"

// LLM provider names accepted by ServiceConfig.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// ServiceConfig configures the repoquery service.
type ServiceConfig struct {
	// RepositoryRoot is the absolute path of the repository to answer
	// questions about. Fixed for the lifetime of the service.
	RepositoryRoot string

	// Provider selects the chat backend: "ollama" or "openai".
	// Default: "ollama"
	Provider string

	// Session holds per-session parameters (nil uses defaults).
	Session *agent.SessionConfig

	// LSP configures the language server lifecycle.
	LSP lsp.ManagerConfig
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Provider: ProviderOllama,
		LSP:      lsp.DefaultManagerConfig(),
	}
}

// Service answers questions about one configured repository.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Every query gets its own
//	session, capability registry, memoization cache, and language
//	server connection; no session state is shared across queries.
type Service struct {
	config ServiceConfig

	// client is the chat backend shared by all sessions.
	client llm.Client
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClient overrides the chat client. Used by tests and callers that
// construct their own backend.
func WithClient(client llm.Client) ServiceOption {
	return func(s *Service) {
		s.client = client
	}
}

// NewService creates the repoquery service.
//
// Description:
//
//	Validates the repository root and constructs the chat client for
//	the configured provider. The root must be an existing, absolute
//	directory path.
//
// Inputs:
//
//	config - Service configuration
//	opts - Optional overrides
//
// Outputs:
//
//	*Service - The new service
//	error - Non-nil if the root or provider is invalid
func NewService(config ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if !filepath.IsAbs(config.RepositoryRoot) {
		return nil, fmt.Errorf("%w: %q", ErrRootNotAbsolute, config.RepositoryRoot)
	}
	info, err := os.Stat(config.RepositoryRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrRootNotFound, config.RepositoryRoot)
	}
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}

	s := &Service{config: config}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		switch config.Provider {
		case ProviderOllama:
			s.client = llm.NewOllamaClient()
		case ProviderOpenAI:
			client, err := llm.NewOpenAIClient()
			if err != nil {
				return nil, err
			}
			s.client = client
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, config.Provider)
		}
	}

	slog.Info("Repoquery service created",
		slog.String("repository", config.RepositoryRoot),
		slog.String("provider", s.client.Name()),
		slog.String("model", s.client.Model()),
	)

	return s, nil
}

// RepositoryRoot returns the configured repository path.
func (s *Service) RepositoryRoot() string {
	return s.config.RepositoryRoot
}

// Query answers one question about the repository.
//
// Description:
//
//	Acquires a language server connection scoped to this query, builds
//	a fresh capability registry and session over it, and runs the
//	conversation driver to completion. The language server is shut down
//	on every exit path.
//
// Inputs:
//
//	ctx - Context for cancellation
//	question - The natural-language question
//
// Outputs:
//
//	*agent.RunResult - The driver's result
//	error - Non-nil if the session could not be created or the chat
//	        service failed
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) Query(ctx context.Context, question string) (*agent.RunResult, error) {
	start := time.Now()

	adapter := lsp.NewSessionAdapter(s.config.RepositoryRoot, s.config.LSP)
	defer func() {
		if err := adapter.Close(context.Background()); err != nil {
			slog.Warn("Language server shutdown failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	registry := tools.NewRegistry()
	tools.RegisterRepositoryTools(registry, s.config.RepositoryRoot, adapter)

	session, err := agent.NewSession(registry, s.config.Session)
	if err != nil {
		recordQuery(outcomeError, time.Since(start), 0, 0)
		return nil, err
	}

	driver, err := agent.NewDriver(s.client)
	if err != nil {
		recordQuery(outcomeError, time.Since(start), 0, 0)
		return nil, err
	}

	result, err := driver.Run(ctx, session, question)
	if err != nil {
		recordQuery(outcomeError, time.Since(start), 0, 0)
		return nil, err
	}

	outcome := outcomeOK
	if result.Exhausted {
		outcome = outcomeExhausted
	}
	recordQuery(outcome, result.Duration, result.Metrics.ToolCalls, result.Metrics.ChatCalls)

	return result, nil
}
