// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp adapts external language servers into the narrow symbol and
// reference lookups the repository tools need.
//
// The package owns the server process lifecycle: servers are spawned on
// first use for a language, and SessionAdapter.Close shuts everything down
// deterministically so a session never leaks a child process. Symbol data
// is passed through as opaque records; the conversation driver does not
// interpret its shape.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use.
package lsp

import (
	"context"
	"encoding/json"
	"strings"
)

// DocumentSymbol is an opaque symbol record as returned by the language
// server. Consumers serialize it back to the model without inspecting it.
type DocumentSymbol map[string]any

// Reference is a normalized reference location, repository-relative with
// 1-based row and column.
type Reference struct {
	// FilePath is the path relative to the repository root.
	FilePath string `json:"file_path"`

	// Row is the 1-based line number.
	Row int `json:"row"`

	// Column is the 1-based column number.
	Column int `json:"column"`
}

// SymbolSource is the contract the capability tools depend on.
//
// Implementations must tolerate per-file failures: an error from one file
// must not poison lookups for other files.
type SymbolSource interface {
	// DocumentSymbols returns the symbols defined in a repository-relative file.
	DocumentSymbols(ctx context.Context, relPath string) ([]DocumentSymbol, error)

	// References returns all references to the entity at the given 1-based
	// row and column of a repository-relative file.
	References(ctx context.Context, relPath string, row, column int) ([]Reference, error)
}

// lspPosition is a zero-based LSP text position.
type lspPosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// lspRange is an LSP text range.
type lspRange struct {
	Start lspPosition `json:"start"`
	End   lspPosition `json:"end"`
}

// lspLocation is an LSP location. TargetURI/TargetRange cover the
// LocationLink variant some servers return.
type lspLocation struct {
	URI         string    `json:"uri"`
	Range       lspRange  `json:"range"`
	TargetURI   string    `json:"targetUri"`
	TargetRange *lspRange `json:"targetSelectionRange"`
}

// pathToURI converts an absolute path to a file:// URI.
func pathToURI(path string) string {
	return "file://" + path
}

// uriToPath converts a file:// URI back to an absolute path.
func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// parseLocationResponse decodes a references or definition response.
//
// Description:
//
//	Servers return null, a single Location, an array of Locations, or an
//	array of LocationLinks depending on capability negotiation. All forms
//	are normalized to a flat slice; null and empty payloads yield nil.
//
// Inputs:
//
//	raw - The raw JSON-RPC result.
//
// Outputs:
//
//	[]lspLocation - Decoded locations, nil when the payload is empty.
//	error - Non-nil if the payload is malformed.
func parseLocationResponse(raw json.RawMessage) ([]lspLocation, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var single lspLocation
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []lspLocation{single}, nil
	}

	var many []lspLocation
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// resolvedURI returns the location's URI, preferring the LocationLink form.
func (l lspLocation) resolvedURI() string {
	if l.TargetURI != "" {
		return l.TargetURI
	}
	return l.URI
}

// resolvedRange returns the location's range, preferring the LocationLink form.
func (l lspLocation) resolvedRange() lspRange {
	if l.TargetRange != nil {
		return *l.TargetRange
	}
	return l.Range
}
