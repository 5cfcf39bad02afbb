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
	"encoding/json"
	"fmt"
	"path/filepath"
)

// Operations provides symbol and reference lookups on absolute paths.
//
// Thread Safety: Safe for concurrent use.
type Operations struct {
	mgr *Manager
}

// NewOperations creates operations backed by the given manager.
func NewOperations(mgr *Manager) *Operations {
	return &Operations{mgr: mgr}
}

// Manager returns the underlying server manager.
func (o *Operations) Manager() *Manager {
	return o.mgr
}

// languageFromPath maps a file path to its language identifier, or "".
func (o *Operations) languageFromPath(path string) string {
	return languageFromPath(o.mgr.Configs(), path)
}

// server returns a ready server for the file, spawning one if needed.
func (o *Operations) server(ctx context.Context, absPath string) (*Server, error) {
	language := o.languageFromPath(absPath)
	if language == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(absPath))
	}
	return o.mgr.GetOrSpawn(ctx, language)
}

// DocumentSymbols returns the symbols defined in the file at absPath.
//
// Description:
//
//	Ensures the file is open on the server, issues
//	textDocument/documentSymbol, and returns the result rows as opaque
//	records. Both the hierarchical DocumentSymbol form and the flat
//	SymbolInformation form decode into the same shape.
//
// Inputs:
//
//	ctx - Context for cancellation; the manager's RequestTimeout applies.
//	absPath - Absolute path of the file.
//
// Outputs:
//
//	[]DocumentSymbol - The symbols, nil when the server returns null.
//	error - Non-nil on server or decode failure.
func (o *Operations) DocumentSymbols(ctx context.Context, absPath string) ([]DocumentSymbol, error) {
	server, err := o.server(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if err := server.EnsureOpen(absPath); err != nil {
		return nil, err
	}

	reqCtx, cancel := o.requestContext(ctx)
	defer cancel()

	raw, err := server.Request(reqCtx, "textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(absPath)},
	})
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, fmt.Errorf("%w: decode symbols: %v", ErrRequestFailed, err)
	}
	return symbols, nil
}

// References returns every location referencing the entity at the given
// 1-based row and column of the file at absPath.
//
// Inputs:
//
//	ctx - Context for cancellation; the manager's RequestTimeout applies.
//	absPath - Absolute path of the file.
//	row, column - 1-based position of the entity.
//
// Outputs:
//
//	[]lspLocation - Raw locations; nil when the server finds none.
//	error - Non-nil on server or decode failure.
func (o *Operations) References(ctx context.Context, absPath string, row, column int) ([]lspLocation, error) {
	server, err := o.server(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if err := server.EnsureOpen(absPath); err != nil {
		return nil, err
	}

	reqCtx, cancel := o.requestContext(ctx)
	defer cancel()

	raw, err := server.Request(reqCtx, "textDocument/references", map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(absPath)},
		"position":     lspPosition{Line: row - 1, Character: column - 1},
		"context":      map[string]any{"includeDeclaration": true},
	})
	if err != nil {
		return nil, err
	}

	return parseLocationResponse(raw)
}

// requestContext derives a context bounded by the manager's request timeout.
func (o *Operations) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.mgr.Config().RequestTimeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
