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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/repoquery/services/repoquery/lsp"
)

// fakeSymbolSource is a scripted SymbolSource for tests.
type fakeSymbolSource struct {
	symbols  map[string][]lsp.DocumentSymbol
	refs     map[string][]lsp.Reference
	failFor  map[string]bool
	symCalls int
}

func (f *fakeSymbolSource) DocumentSymbols(ctx context.Context, relPath string) ([]lsp.DocumentSymbol, error) {
	f.symCalls++
	if f.failFor[relPath] {
		return nil, errors.New("server unavailable")
	}
	return f.symbols[relPath], nil
}

func (f *fakeSymbolSource) References(ctx context.Context, relPath string, row, column int) ([]lsp.Reference, error) {
	key := fmt.Sprintf("%s:%d:%d", relPath, row, column)
	if f.failFor[key] {
		return nil, errors.New("server unavailable")
	}
	return f.refs[key], nil
}

// newTestRepo builds a small repository with a hidden directory.
func newTestRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("a.py", "def foo(): pass\n")
	write("b.py", "foo()\n")
	write(".git/HEAD", "ref: refs/heads/main\n")
	return root
}

func newTestExecutor(t *testing.T, root string, source lsp.SymbolSource) *Executor {
	t.Helper()
	registry := NewRegistry()
	RegisterRepositoryTools(registry, root, source)
	return NewExecutor(registry)
}

func TestRegisterRepositoryTools_Count(t *testing.T) {
	registry := NewRegistry()
	RegisterRepositoryTools(registry, "/repo", &fakeSymbolSource{})

	if registry.Count() != 7 {
		t.Errorf("expected 7 tools, got %d: %v", registry.Count(), registry.Names())
	}

	// Direct file tools and symbol-backed tools partition the set.
	repo := registry.GetByCategory(CategoryRepository)
	symbols := registry.GetByCategory(CategorySymbols)
	if len(repo) != 4 {
		t.Errorf("expected 4 repository tools, got %d", len(repo))
	}
	if len(symbols) != 3 {
		t.Errorf("expected 3 symbol tools, got %d", len(symbols))
	}
}

func TestToolDefinition_RequiredParams(t *testing.T) {
	def := ToolDefinition{
		Parameters: map[string]ParamDef{
			"string_pattern": {Type: ParamTypeString, Required: true},
			"file_path":      {Type: ParamTypeString, Required: true},
			"limit":          {Type: ParamTypeInt},
		},
	}

	required := def.RequiredParams()
	if len(required) != 2 || required[0] != "file_path" || required[1] != "string_pattern" {
		t.Errorf("expected sorted required params, got %v", required)
	}
}

func TestListFiles_ExcludesHidden(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	result, err := exec.Execute(context.Background(), "list_files_in_repository", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := result.Output.([]string)
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	for _, f := range files {
		if strings.HasPrefix(filepath.ToSlash(f), ".") {
			t.Errorf("hidden file leaked: %q", f)
		}
	}
}

func TestFindStringInRepository_TwoFiles(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	result, err := exec.Execute(context.Background(), "find_string_in_repository",
		map[string]any{"string_pattern": "foo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := result.Output.(PartialMatches)
	if len(out.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %v", out.Matches)
	}
	if len(out.FailedFiles) != 0 {
		t.Errorf("expected no failed files, got %v", out.FailedFiles)
	}

	// a.py: "def foo(): pass" -> row 1, column 5. b.py: "foo()" -> row 1, column 1.
	byFile := map[string]SymbolLocation{}
	for _, m := range out.Matches {
		byFile[m.FilePath] = m
	}
	if loc := byFile["a.py"]; loc.Row != 1 || loc.Column != 5 {
		t.Errorf("a.py location = %+v, want row 1 column 5", loc)
	}
	if loc := byFile["b.py"]; loc.Row != 1 || loc.Column != 1 {
		t.Errorf("b.py location = %+v, want row 1 column 1", loc)
	}
}

func TestFindStringInFile_CaseInsensitive(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	result, err := exec.Execute(context.Background(), "find_string_in_file",
		map[string]any{"file_path": "a.py", "string_pattern": "FOO"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	locations := result.Output.([]SymbolLocation)
	if len(locations) != 1 {
		t.Fatalf("expected 1 match, got %v", locations)
	}
}

func TestFindStringInFile_InvalidPathsReturnEmpty(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	tests := []string{"../escape.py", "missing.py"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			result, err := exec.Execute(context.Background(), "find_string_in_file",
				map[string]any{"file_path": path, "string_pattern": "foo"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if locations := result.Output.([]SymbolLocation); len(locations) != 0 {
				t.Errorf("expected empty result, got %v", locations)
			}
		})
	}
}

func TestSessionCache_SurvivesFileMutation(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	params := map[string]any{"file_path": "a.py", "string_pattern": "foo"}

	first, err := exec.Execute(context.Background(), "find_string_in_file", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached {
		t.Error("first call should not be cached")
	}

	// Mutate the file; the cached result must win.
	if err := os.WriteFile(filepath.Join(root, "a.py"), []byte("nothing here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := exec.Execute(context.Background(), "find_string_in_file", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached {
		t.Error("second call should be served from the session cache")
	}

	firstLocs := first.Output.([]SymbolLocation)
	secondLocs := second.Output.([]SymbolLocation)
	if len(firstLocs) != len(secondLocs) || len(secondLocs) != 1 {
		t.Errorf("cached result diverged: first=%v second=%v", firstLocs, secondLocs)
	}
}

func TestGetFileSource_Sentinels(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"empty path", "", emptyPathSentinel},
		{"outside sandbox", "../../etc/passwd", "Cannot get contents of ../../etc/passwd"},
		{"missing file", "missing.py", "Cannot get contents of missing.py"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := exec.Execute(context.Background(), "get_file_source",
				map[string]any{"file_path": tc.path})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Output.(string) != tc.expected {
				t.Errorf("got %q, want %q", result.Output, tc.expected)
			}
		})
	}
}

func TestGetFileSource_WrapsContent(t *testing.T) {
	root := newTestRepo(t)
	exec := newTestExecutor(t, root, &fakeSymbolSource{})

	result, err := exec.Execute(context.Background(), "get_file_source",
		map[string]any{"file_path": "a.py"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := result.Output.(string)
	if !strings.Contains(out, "The contents of a.py") {
		t.Errorf("missing preamble: %q", out)
	}
	if !strings.Contains(out, "def foo(): pass") {
		t.Errorf("missing file content: %q", out)
	}
}

func TestRepositorySymbols_PartialFailure(t *testing.T) {
	root := newTestRepo(t)
	source := &fakeSymbolSource{
		symbols: map[string][]lsp.DocumentSymbol{
			"a.py": {{"name": "foo", "kind": float64(12)}},
		},
		failFor: map[string]bool{"b.py": true},
	}
	exec := newTestExecutor(t, root, source)

	result, err := exec.Execute(context.Background(), "request_repository_symbols", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := result.Output.(PartialSymbols)
	if len(out.Symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %v", out.Symbols)
	}
	if out.Symbols[0]["file_path"] != "a.py" {
		t.Errorf("symbol not annotated with file path: %v", out.Symbols[0])
	}
	if len(out.FailedFiles) != 1 || out.FailedFiles[0] != "b.py" {
		t.Errorf("expected b.py in failed files, got %v", out.FailedFiles)
	}
}

func TestDocumentSymbols_PropagatesFailure(t *testing.T) {
	root := newTestRepo(t)
	source := &fakeSymbolSource{failFor: map[string]bool{"a.py": true}}
	exec := newTestExecutor(t, root, source)

	_, err := exec.Execute(context.Background(), "request_document_symbols",
		map[string]any{"file_path": "a.py"})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Errorf("expected ErrExecutionFailed, got %v", err)
	}
}

func TestReferences_GroupsPerOccurrence(t *testing.T) {
	root := newTestRepo(t)
	source := &fakeSymbolSource{
		refs: map[string][]lsp.Reference{
			"a.py:1:5": {
				{FilePath: "a.py", Row: 1, Column: 5},
				{FilePath: "b.py", Row: 1, Column: 1},
			},
		},
	}
	exec := newTestExecutor(t, root, source)

	result, err := exec.Execute(context.Background(), "request_references",
		map[string]any{"file_path": "a.py", "code": "foo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	groups := result.Output.([]ReferenceGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %v", groups)
	}
	if len(groups[0].References) != 2 {
		t.Errorf("expected 2 references, got %v", groups[0].References)
	}
	if groups[0].At.Row != 1 || groups[0].At.Column != 5 {
		t.Errorf("unexpected occurrence location %+v", groups[0].At)
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	exec := newTestExecutor(t, t.TempDir(), &fakeSymbolSource{})

	_, err := exec.Execute(context.Background(), "launch_missiles", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestExecutor_ValidationFailure(t *testing.T) {
	exec := newTestExecutor(t, t.TempDir(), &fakeSymbolSource{})

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing required", map[string]any{}},
		{"wrong type", map[string]any{"file_path": 42, "string_pattern": "x"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), "find_string_in_file", tc.params)
			if !errors.Is(err, ErrValidationFailed) {
				t.Errorf("expected ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestExecutor_FailuresNotCached(t *testing.T) {
	root := newTestRepo(t)
	source := &fakeSymbolSource{failFor: map[string]bool{"a.py": true}}
	exec := newTestExecutor(t, root, source)

	params := map[string]any{"file_path": "a.py"}

	if _, err := exec.Execute(context.Background(), "request_document_symbols", params); err == nil {
		t.Fatal("expected failure")
	}

	// Clear the failure; the retry must reach the source again.
	source.failFor = nil
	source.symbols = map[string][]lsp.DocumentSymbol{"a.py": {{"name": "foo"}}}

	result, err := exec.Execute(context.Background(), "request_document_symbols", params)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Cached {
		t.Error("failure should not have been cached")
	}
}
