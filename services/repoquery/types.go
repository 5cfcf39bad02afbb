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

// QueryRequest is the request body for POST /v1/repoquery/query.
type QueryRequest struct {
	// Question is the natural-language question about the repository.
	Question string `json:"question" binding:"required"`
}

// QueryResponse is the response for POST /v1/repoquery/query.
type QueryResponse struct {
	// Response is the model's final answer. Empty when the iteration
	// budget was exhausted.
	Response string `json:"response"`

	// Exhausted is true when the conversation hit its iteration cap
	// before the model produced a final answer.
	Exhausted bool `json:"exhausted,omitempty"`

	// SessionID identifies the conversation that produced the answer.
	SessionID string `json:"session_id,omitempty"`

	// Iterations is the number of model round trips used.
	Iterations int `json:"iterations,omitempty"`
}

// HealthResponse is the response for GET /v1/repoquery/health.
type HealthResponse struct {
	// Status is "healthy" when the service is running.
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Repository is the configured repository root.
	Repository string `json:"repository,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is a human-readable error message.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code"`
}
