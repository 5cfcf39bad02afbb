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
	"path/filepath"

	"github.com/AleutianAI/repoquery/services/repoquery/sandbox"
)

// SessionAdapter implements SymbolSource for one repository, translating
// repository-relative paths to absolute ones and LSP locations back to
// repository-relative references.
//
// The adapter owns the language server lifecycle for the session: acquire
// it with NewSessionAdapter and release it with Close on every exit path.
//
// Thread Safety: Safe for concurrent use.
type SessionAdapter struct {
	root string
	ops  *Operations
}

// NewSessionAdapter creates an adapter rooted at the given repository.
//
// Inputs:
//
//	root - Absolute repository root.
//	config - Manager configuration for the underlying servers.
//
// Outputs:
//
//	*SessionAdapter - The adapter. Close must be called when done.
func NewSessionAdapter(root string, config ManagerConfig) *SessionAdapter {
	return &SessionAdapter{
		root: root,
		ops:  NewOperations(NewManager(root, config)),
	}
}

// DocumentSymbols implements SymbolSource.
//
// The relative path is validated through the sandbox before it reaches the
// server, so a traversal sequence fails here rather than on the server.
func (a *SessionAdapter) DocumentSymbols(ctx context.Context, relPath string) ([]DocumentSymbol, error) {
	abs, err := sandbox.Resolve(a.root, relPath)
	if err != nil {
		return nil, err
	}
	return a.ops.DocumentSymbols(ctx, abs)
}

// References implements SymbolSource.
//
// Locations outside the repository root (e.g. references into the standard
// library) are dropped from the result.
func (a *SessionAdapter) References(ctx context.Context, relPath string, row, column int) ([]Reference, error) {
	abs, err := sandbox.Resolve(a.root, relPath)
	if err != nil {
		return nil, err
	}

	locations, err := a.ops.References(ctx, abs, row, column)
	if err != nil {
		return nil, err
	}

	refs := make([]Reference, 0, len(locations))
	for _, loc := range locations {
		path := uriToPath(loc.resolvedURI())
		rel, relErr := filepath.Rel(a.root, path)
		if relErr != nil || rel == ".." || filepath.IsAbs(rel) {
			continue
		}
		if len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
			continue
		}
		rng := loc.resolvedRange()
		refs = append(refs, Reference{
			FilePath: rel,
			Row:      rng.Start.Line + 1,
			Column:   rng.Start.Character + 1,
		})
	}
	return refs, nil
}

// Close shuts down every language server owned by this adapter.
func (a *SessionAdapter) Close(ctx context.Context) error {
	return a.ops.Manager().ShutdownAll(ctx)
}
