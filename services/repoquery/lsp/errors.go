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

import "errors"

// Sentinel errors for the lsp package.
var (
	// ErrUnsupportedLanguage indicates no server configuration exists for
	// the file's language.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrServerNotInstalled indicates the language server binary was not
	// found on PATH.
	ErrServerNotInstalled = errors.New("language server not installed")

	// ErrInitializeFailed indicates the LSP initialize handshake failed.
	ErrInitializeFailed = errors.New("language server initialization failed")

	// ErrServerStopped indicates the server process has exited.
	ErrServerStopped = errors.New("language server stopped")

	// ErrRequestFailed indicates the server returned a JSON-RPC error.
	ErrRequestFailed = errors.New("language server request failed")
)
