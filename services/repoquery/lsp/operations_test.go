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
	"testing"
	"time"
)

func TestNewOperations(t *testing.T) {
	mgr := NewManager("/tmp/test", DefaultManagerConfig())
	defer mgr.ShutdownAll(context.Background())

	ops := NewOperations(mgr)

	if ops.Manager() != mgr {
		t.Error("Manager() should return the provided manager")
	}
}

func TestOperations_languageFromPath(t *testing.T) {
	mgr := NewManager("/tmp/test", DefaultManagerConfig())
	defer mgr.ShutdownAll(context.Background())

	ops := NewOperations(mgr)

	tests := []struct {
		path     string
		expected string
	}{
		{"/project/main.go", "go"},
		{"/project/app.py", "python"},
		{"/project/app.ts", "typescript"},
		{"/project/app.js", "javascript"},
		{"/project/unknown.xyz", ""},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got := ops.languageFromPath(tc.path)
			if got != tc.expected {
				t.Errorf("languageFromPath(%q) = %q, want %q", tc.path, got, tc.expected)
			}
		})
	}
}

func TestPathToURI(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/project/main.go", "file:///project/main.go"},
		{"/Users/test/app.py", "file:///Users/test/app.py"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got := pathToURI(tc.path)
			if got != tc.expected {
				t.Errorf("pathToURI(%q) = %q, want %q", tc.path, got, tc.expected)
			}
		})
	}
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		uri      string
		expected string
	}{
		{"file:///project/main.go", "/project/main.go"},
		{"file:///Users/test/app.py", "/Users/test/app.py"},
	}

	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			got := uriToPath(tc.uri)
			if got != tc.expected {
				t.Errorf("uriToPath(%q) = %q, want %q", tc.uri, got, tc.expected)
			}
		})
	}
}

func TestParseLocationResponse(t *testing.T) {
	t.Run("null response", func(t *testing.T) {
		locs, err := parseLocationResponse(json.RawMessage("null"))
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if locs != nil {
			t.Errorf("expected nil, got %v", locs)
		}
	})

	t.Run("empty response", func(t *testing.T) {
		locs, err := parseLocationResponse(json.RawMessage(""))
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if locs != nil {
			t.Errorf("expected nil, got %v", locs)
		}
	})

	t.Run("single location", func(t *testing.T) {
		raw := json.RawMessage(`{"uri":"file:///project/a.py","range":{"start":{"line":4,"character":2},"end":{"line":4,"character":5}}}`)
		locs, err := parseLocationResponse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(locs) != 1 {
			t.Fatalf("expected 1 location, got %d", len(locs))
		}
		if locs[0].URI != "file:///project/a.py" {
			t.Errorf("unexpected URI %q", locs[0].URI)
		}
		if locs[0].Range.Start.Line != 4 {
			t.Errorf("expected line 4, got %d", locs[0].Range.Start.Line)
		}
	})

	t.Run("array of locations", func(t *testing.T) {
		raw := json.RawMessage(`[{"uri":"file:///a.py","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}}},{"uri":"file:///b.py","range":{"start":{"line":1,"character":0},"end":{"line":1,"character":3}}}]`)
		locs, err := parseLocationResponse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(locs) != 2 {
			t.Fatalf("expected 2 locations, got %d", len(locs))
		}
	})

	t.Run("location link", func(t *testing.T) {
		raw := json.RawMessage(`[{"targetUri":"file:///c.py","targetSelectionRange":{"start":{"line":9,"character":4},"end":{"line":9,"character":7}}}]`)
		locs, err := parseLocationResponse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if locs[0].resolvedURI() != "file:///c.py" {
			t.Errorf("unexpected resolved URI %q", locs[0].resolvedURI())
		}
		if locs[0].resolvedRange().Start.Line != 9 {
			t.Errorf("expected line 9, got %d", locs[0].resolvedRange().Start.Line)
		}
	})
}

func TestServer_LastUsedInitialized(t *testing.T) {
	before := time.Now()
	server := NewServer(LanguageConfig{Language: "go", Command: "gopls"}, "/repo")

	lastUsed := server.LastUsed()
	if lastUsed.Before(before) || lastUsed.After(time.Now()) {
		t.Errorf("LastUsed %v outside creation window", lastUsed)
	}
}

func TestManager_GetOrSpawn_UnsupportedLanguage(t *testing.T) {
	mgr := NewManager("/tmp/test", DefaultManagerConfig())
	defer mgr.ShutdownAll(context.Background())

	_, err := mgr.GetOrSpawn(context.Background(), "cobol")
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestManager_ShutdownAll_Idempotent(t *testing.T) {
	mgr := NewManager("/tmp/test", DefaultManagerConfig())

	if err := mgr.ShutdownAll(context.Background()); err != nil {
		t.Errorf("first shutdown: %v", err)
	}
	if err := mgr.ShutdownAll(context.Background()); err != nil {
		t.Errorf("second shutdown: %v", err)
	}

	if _, err := mgr.GetOrSpawn(context.Background(), "go"); err == nil {
		t.Error("expected error after shutdown")
	}
}

func TestConfigRegistry_Defaults(t *testing.T) {
	r := NewConfigRegistry()

	for _, lang := range []string{"go", "python", "typescript", "javascript"} {
		if _, ok := r.Get(lang); !ok {
			t.Errorf("expected default config for %q", lang)
		}
	}

	if lang, ok := r.LanguageForExtension(".py"); !ok || lang != "python" {
		t.Errorf("LanguageForExtension(.py) = %q, %v", lang, ok)
	}
}
