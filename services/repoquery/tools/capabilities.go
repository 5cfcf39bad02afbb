// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/repoquery/services/repoquery/lsp"
	"github.com/AleutianAI/repoquery/services/repoquery/sandbox"
)

// RegisterRepositoryTools registers the seven introspection capabilities
// for one repository session.
//
// Description:
//
//	Binds every capability to the repository root and the symbol source.
//	The registry should be session-scoped: capabilities carry no mutable
//	state of their own, but the executor's memoization cache must not
//	outlive the symbol source connection.
//
// Inputs:
//
//	registry - The tool registry to populate.
//	root - Absolute repository root.
//	source - Symbol and reference lookups for the session.
func RegisterRepositoryTools(registry *Registry, root string, source lsp.SymbolSource) {
	registry.Register(&listFilesTool{root: root})
	registry.Register(&findStringInFileTool{root: root})
	registry.Register(&findStringInRepositoryTool{root: root})
	registry.Register(&documentSymbolsTool{source: source})
	registry.Register(&repositorySymbolsTool{root: root, source: source})
	registry.Register(&referencesTool{root: root, source: source})
	registry.Register(&getFileSourceTool{root: root})

	slog.Debug("Registered repository capabilities",
		slog.String("root", root),
		slog.Int("repository_tools", len(registry.GetByCategory(CategoryRepository))),
		slog.Int("symbol_tools", len(registry.GetByCategory(CategorySymbols))),
	)
}

// PartialMatches is the result of a repository-wide text search. FailedFiles
// distinguishes "no matches" from "some files could not be searched".
type PartialMatches struct {
	Matches     []SymbolLocation `json:"matches"`
	FailedFiles []string         `json:"failed_files,omitempty"`
}

// PartialSymbols is the result of a repository-wide symbol lookup, with the
// same partial-failure shape as PartialMatches.
type PartialSymbols struct {
	Symbols     []lsp.DocumentSymbol `json:"symbols"`
	FailedFiles []string             `json:"failed_files,omitempty"`
}

// ReferenceGroup pairs one occurrence of a snippet with the references the
// symbol source reports at that position.
type ReferenceGroup struct {
	At         SymbolLocation  `json:"at"`
	References []lsp.Reference `json:"references"`
}

// ============================================================================
// list_files_in_repository
// ============================================================================

type listFilesTool struct {
	root string
}

func (t *listFilesTool) Name() string {
	return "list_files_in_repository"
}

func (t *listFilesTool) Category() ToolCategory {
	return CategoryRepository
}

func (t *listFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_files_in_repository",
		Description: "Returns a list of all the files in the code repository",
		Parameters:  map[string]ParamDef{},
		Category:    CategoryRepository,
	}
}

// Execute never fails: an unreadable root yields an empty list.
func (t *listFilesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return &Result{Success: true, Output: sandbox.ListFiles(t.root)}, nil
}

// ============================================================================
// find_string_in_file
// ============================================================================

type findStringInFileTool struct {
	root string
}

func (t *findStringInFileTool) Name() string {
	return "find_string_in_file"
}

func (t *findStringInFileTool) Category() ToolCategory {
	return CategoryRepository
}

func (t *findStringInFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_string_in_file",
		Description: "Finds a list of rows and columns a string occurs in within a file. Matching is case-insensitive.",
		Parameters: map[string]ParamDef{
			"file_path": {
				Type:        ParamTypeString,
				Description: "Repository-relative path of the file to search",
				Required:    true,
			},
			"string_pattern": {
				Type:        ParamTypeString,
				Description: "The text to search for",
				Required:    true,
			},
		},
		Category: CategoryRepository,
	}
}

// Execute returns an empty list for invalid paths, sandbox rejections, and
// unreadable files. The model should not see a hard failure for a bad guess.
func (t *findStringInFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filePath := stringParam(params, "file_path")
	pattern := stringParam(params, "string_pattern")

	locations, err := searchFile(t.root, filePath, pattern)
	if err != nil {
		return &Result{Success: true, Output: []SymbolLocation{}}, nil
	}
	return &Result{Success: true, Output: locations}, nil
}

// searchFile scans one file for case-insensitive matches of pattern,
// returning 1-based locations of the first match on each matching line.
func searchFile(root, relPath, pattern string) ([]SymbolLocation, error) {
	abs, err := sandbox.Resolve(root, relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lowered := strings.ToLower(pattern)
	locations := make([]SymbolLocation, 0, 4)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	row := 0
	for scanner.Scan() {
		row++
		idx := strings.Index(strings.ToLower(scanner.Text()), lowered)
		if idx < 0 {
			continue
		}
		locations = append(locations, SymbolLocation{
			FilePath: relPath,
			Row:      row,
			Column:   idx + 1,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

// ============================================================================
// find_string_in_repository
// ============================================================================

type findStringInRepositoryTool struct {
	root string
}

func (t *findStringInRepositoryTool) Name() string {
	return "find_string_in_repository"
}

func (t *findStringInRepositoryTool) Category() ToolCategory {
	return CategoryRepository
}

func (t *findStringInRepositoryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_string_in_repository",
		Description: "Finds all the matching instances of a search string in the repository, in all files. Matching is case-insensitive.",
		Parameters: map[string]ParamDef{
			"string_pattern": {
				Type:        ParamTypeString,
				Description: "The text to search for",
				Required:    true,
			},
		},
		Category: CategoryRepository,
	}
}

// Execute never fails as a whole; files that could not be searched are
// reported in failed_files instead of silently dropped.
func (t *findStringInRepositoryTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	pattern := stringParam(params, "string_pattern")

	out := PartialMatches{Matches: []SymbolLocation{}}
	for _, file := range sandbox.ListFiles(t.root) {
		locations, err := searchFile(t.root, file, pattern)
		if err != nil {
			out.FailedFiles = append(out.FailedFiles, file)
			continue
		}
		out.Matches = append(out.Matches, locations...)
	}
	return &Result{Success: true, Output: out}, nil
}

// ============================================================================
// request_document_symbols
// ============================================================================

type documentSymbolsTool struct {
	source lsp.SymbolSource
}

func (t *documentSymbolsTool) Name() string {
	return "request_document_symbols"
}

func (t *documentSymbolsTool) Category() ToolCategory {
	return CategorySymbols
}

func (t *documentSymbolsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "request_document_symbols",
		Description: "Gets a list of defined code symbols in a file",
		Parameters: map[string]ParamDef{
			"file_path": {
				Type:        ParamTypeString,
				Description: "Repository-relative path of the file",
				Required:    true,
			},
		},
		Category: CategorySymbols,
	}
}

// Execute propagates symbol source failures; the conversation driver turns
// them into an error message the model can react to.
func (t *documentSymbolsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	symbols, err := t.source.DocumentSymbols(ctx, stringParam(params, "file_path"))
	if err != nil {
		return nil, err
	}
	if symbols == nil {
		symbols = []lsp.DocumentSymbol{}
	}
	return &Result{Success: true, Output: symbols}, nil
}

// ============================================================================
// request_repository_symbols
// ============================================================================

type repositorySymbolsTool struct {
	root   string
	source lsp.SymbolSource
}

func (t *repositorySymbolsTool) Name() string {
	return "request_repository_symbols"
}

func (t *repositorySymbolsTool) Category() ToolCategory {
	return CategorySymbols
}

func (t *repositorySymbolsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "request_repository_symbols",
		Description: "Finds all code symbols defined in the repository",
		Parameters:  map[string]ParamDef{},
		Category:    CategorySymbols,
	}
}

// Execute aggregates per-file symbol lookups. Files the symbol source cannot
// handle (unsupported language, server failure) land in failed_files; each
// symbol is annotated with its owning file path.
func (t *repositorySymbolsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	out := PartialSymbols{Symbols: []lsp.DocumentSymbol{}}

	for _, file := range sandbox.ListFiles(t.root) {
		symbols, err := t.source.DocumentSymbols(ctx, file)
		if err != nil {
			out.FailedFiles = append(out.FailedFiles, file)
			continue
		}
		for _, sym := range symbols {
			annotated := make(lsp.DocumentSymbol, len(sym)+1)
			for k, v := range sym {
				annotated[k] = v
			}
			annotated["file_path"] = file
			out.Symbols = append(out.Symbols, annotated)
		}
	}
	return &Result{Success: true, Output: out}, nil
}

// ============================================================================
// request_references
// ============================================================================

type referencesTool struct {
	root   string
	source lsp.SymbolSource
}

func (t *referencesTool) Name() string {
	return "request_references"
}

func (t *referencesTool) Category() ToolCategory {
	return CategorySymbols
}

func (t *referencesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "request_references",
		Description: "Find all the references for a specific piece of code in a file",
		Parameters: map[string]ParamDef{
			"file_path": {
				Type:        ParamTypeString,
				Description: "Repository-relative path of the file containing the code",
				Required:    true,
			},
			"code": {
				Type:        ParamTypeString,
				Description: "The code snippet to find references for",
				Required:    true,
			},
		},
		Category: CategorySymbols,
	}
}

// Execute locates the snippet in the file and asks the symbol source for
// references at each occurrence. Lookup failures at individual positions are
// reported as empty reference lists for that position.
func (t *referencesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filePath := stringParam(params, "file_path")
	code := stringParam(params, "code")

	locations, err := searchFile(t.root, filePath, code)
	if err != nil {
		return &Result{Success: true, Output: []ReferenceGroup{}}, nil
	}

	groups := make([]ReferenceGroup, 0, len(locations))
	for _, loc := range locations {
		refs, refErr := t.source.References(ctx, filePath, loc.Row, loc.Column)
		if refErr != nil || refs == nil {
			refs = []lsp.Reference{}
		}
		groups = append(groups, ReferenceGroup{At: loc, References: refs})
	}
	return &Result{Success: true, Output: groups}, nil
}

// ============================================================================
// get_file_source
// ============================================================================

// Sentinel strings returned by get_file_source. This capability is the
// model's ground truth for code and must keep the conversation progressing,
// so it reports failures in-band instead of raising.
const (
	emptyPathSentinel = "Nothing in this file"
	cannotGetSentinel = "Cannot get contents of %s"
)

type getFileSourceTool struct {
	root string
}

func (t *getFileSourceTool) Name() string {
	return "get_file_source"
}

func (t *getFileSourceTool) Category() ToolCategory {
	return CategoryRepository
}

func (t *getFileSourceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_file_source",
		Description: "Returns the full source text of a file. Use this as the source of truth for code.",
		Parameters: map[string]ParamDef{
			"file_path": {
				Type:        ParamTypeString,
				Description: "Repository-relative path of the file",
				Required:    true,
			},
		},
		Category: CategoryRepository,
	}
}

// Execute never returns an error. Sandbox rejections and I/O failures
// produce the sentinel string.
func (t *getFileSourceTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filePath := stringParam(params, "file_path")
	if filePath == "" {
		return &Result{Success: true, Output: emptyPathSentinel}, nil
	}

	abs, err := sandbox.Resolve(t.root, filePath)
	if err != nil {
		return &Result{Success: true, Output: fmt.Sprintf(cannotGetSentinel, filePath)}, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return &Result{Success: true, Output: fmt.Sprintf(cannotGetSentinel, filePath)}, nil
	}

	source := fmt.Sprintf("The contents of %s are as follows:\n```\n%s\n```",
		filepath.ToSlash(filePath), string(content))
	return &Result{Success: true, Output: source}, nil
}

// stringParam fetches a string argument, returning "" for missing or
// mistyped values.
func stringParam(params map[string]any, name string) string {
	v, ok := params[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
