// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox confines repository introspection to a single root directory.
//
// Every tool exposed to the model resolves its file arguments through
// Resolve, so a traversal sequence or an absolute override can never reach
// a file outside the repository. Directory enumeration prunes hidden
// directories during the walk rather than filtering afterwards.
//
// All functions are pure over strings and the file tree; the package holds
// no state.
package sandbox

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// HiddenPrefix marks directories excluded from enumeration. A directory
// whose name starts with this prefix, and everything beneath it, is
// invisible to the tools.
const HiddenPrefix = "."

// Sentinel errors for the sandbox package.
var (
	// ErrEmptyPath indicates an empty relative path was supplied.
	ErrEmptyPath = errors.New("empty file path")

	// ErrOutsideRoot indicates the resolved path escapes the repository root.
	ErrOutsideRoot = errors.New("path escapes repository root")
)

// Resolve resolves a repository-relative path against the root.
//
// Description:
//
//	Joins rel onto root and accepts the result only if it stays within
//	root after lexical normalization. An empty rel is always rejected;
//	it signals "no file" rather than the root itself. An absolute rel is
//	rejected outright instead of being reanchored under root.
//
// Inputs:
//
//	root - Absolute repository root.
//	rel - Repository-relative path. May contain separators.
//
// Outputs:
//
//	string - The absolute path within root.
//	error - ErrEmptyPath or ErrOutsideRoot on rejection.
//
// Thread Safety: This function is safe for concurrent use.
func Resolve(root, rel string) (string, error) {
	if rel == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(rel) {
		return "", ErrOutsideRoot
	}

	abs := filepath.Join(root, rel)

	within, err := filepath.Rel(root, abs)
	if err != nil {
		return "", ErrOutsideRoot
	}
	if within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	return abs, nil
}

// ListFiles enumerates all files beneath root.
//
// Description:
//
//	Walks the repository tree in lexical order and returns paths relative
//	to root. Hidden directories (HiddenPrefix) are pruned during traversal,
//	so their subtrees are never visited, and hidden files sitting directly
//	under root are skipped as well. Per-entry errors are skipped; an
//	unreadable root yields an empty list rather than an error, because the
//	model treats the file list as best-effort ground truth.
//
// Inputs:
//
//	root - Absolute repository root.
//
// Outputs:
//
//	[]string - Repository-relative file paths, never nil.
//
// Thread Safety: This function is safe for concurrent use.
func ListFiles(root string) []string {
	files := make([]string, 0, 64)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), HiddenPrefix) {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		// A hidden file at the root has no hidden parent to prune it.
		if strings.HasPrefix(rel, HiddenPrefix) {
			return nil
		}
		files = append(files, rel)
		return nil
	})

	return files
}
