// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repoquery

import "errors"

// Sentinel errors for the repoquery service.
var (
	// ErrRootNotFound indicates the configured repository root does not
	// exist or is not a directory.
	ErrRootNotFound = errors.New("repository root not found")

	// ErrRootNotAbsolute indicates the repository root is not an
	// absolute path.
	ErrRootNotAbsolute = errors.New("repository root must be absolute")

	// ErrUnknownProvider indicates an unrecognized LLM provider name.
	ErrUnknownProvider = errors.New("unknown LLM provider")
)
