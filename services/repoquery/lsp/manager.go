// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ManagerConfig configures the server manager.
type ManagerConfig struct {
	// StartupTimeout is the maximum time to wait for a server to start.
	StartupTimeout time.Duration

	// RequestTimeout is the default timeout for LSP requests.
	RequestTimeout time.Duration
}

// DefaultManagerConfig returns sensible defaults: 30s startup, 10s request.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		StartupTimeout: 30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Manager owns the language server processes for one workspace.
//
// Description:
//
//	Servers are started lazily on first use, at most one per language.
//	ShutdownAll releases every server; a session wraps the manager in a
//	defer so the processes are reaped on every exit path.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Manager struct {
	config   ManagerConfig
	rootPath string
	configs  *ConfigRegistry

	servers   map[string]*Server
	serversMu sync.RWMutex
	startMu   sync.Map // language -> *sync.Mutex

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager for the given workspace root.
func NewManager(rootPath string, config ManagerConfig) *Manager {
	return &Manager{
		config:   config,
		rootPath: rootPath,
		configs:  NewConfigRegistry(),
		servers:  make(map[string]*Server),
		stopped:  make(chan struct{}),
	}
}

// GetOrSpawn returns a ready server for the language, starting one if needed.
//
// Description:
//
//	Uses double-check locking with a per-language startup mutex so only
//	one server is spawned per language under concurrent callers.
//
// Inputs:
//
//	ctx - Context for cancellation and startup timeout.
//	language - The language identifier.
//
// Outputs:
//
//	*Server - The ready server.
//	error - ErrUnsupportedLanguage, ErrServerNotInstalled, or ErrInitializeFailed.
//
// Thread Safety: Safe for concurrent use.
func (m *Manager) GetOrSpawn(ctx context.Context, language string) (*Server, error) {
	select {
	case <-m.stopped:
		return nil, fmt.Errorf("manager is stopped")
	default:
	}

	m.serversMu.RLock()
	server, ok := m.servers[language]
	m.serversMu.RUnlock()
	if ok && server.State() == ServerStateReady {
		return server, nil
	}

	lockI, _ := m.startMu.LoadOrStore(language, &sync.Mutex{})
	lock := lockI.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	m.serversMu.RLock()
	server, ok = m.servers[language]
	m.serversMu.RUnlock()
	if ok && server.State() == ServerStateReady {
		return server, nil
	}
	if ok && server.State() == ServerStateStopped {
		m.serversMu.Lock()
		delete(m.servers, language)
		m.serversMu.Unlock()
	}

	config, ok := m.configs.Get(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	server = NewServer(config, m.rootPath)

	startCtx := ctx
	if m.config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, m.config.StartupTimeout)
		defer cancel()
	}

	if err := server.Start(startCtx); err != nil {
		return nil, err
	}

	m.serversMu.Lock()
	m.servers[language] = server
	m.serversMu.Unlock()

	return server, nil
}

// ShutdownAll shuts down every server and stops the manager.
//
// Thread Safety: Safe for concurrent use; repeated calls are idempotent.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})

	m.serversMu.Lock()
	servers := make(map[string]*Server, len(m.servers))
	for language, srv := range m.servers {
		servers[language] = srv
	}
	m.servers = make(map[string]*Server)
	m.serversMu.Unlock()

	var lastErr error
	for language, server := range servers {
		slog.Debug("Shutting down language server",
			slog.String("language", language),
			slog.Duration("idle", time.Since(server.LastUsed())),
		)
		if err := server.Shutdown(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// RootPath returns the workspace root path.
func (m *Manager) RootPath() string {
	return m.rootPath
}

// Config returns the manager configuration.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// Configs returns the language configuration registry so callers can
// register custom servers.
func (m *Manager) Configs() *ConfigRegistry {
	return m.configs
}
