// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "errors"

// Sentinel errors for the agent package.
var (
	// ErrEmptyQuestion indicates the question is empty.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrChatFailed indicates the chat service request failed.
	ErrChatFailed = errors.New("chat request failed")

	// ErrSessionClosed indicates the session has already been run.
	ErrSessionClosed = errors.New("session already closed")

	// ErrNilClient indicates no chat client was provided.
	ErrNilClient = errors.New("chat client is nil")

	// ErrNilRegistry indicates no tool registry was provided.
	ErrNilRegistry = errors.New("tool registry is nil")
)
