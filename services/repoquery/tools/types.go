// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the capability registry and execution framework
// exposed to the model.
//
// Each capability is a pure function of (repository root, symbol source,
// arguments) with no side effects on the repository, which makes the whole
// set safe to hand to an external model as callable tools. Results are
// memoized per session by exact argument tuple.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"sort"
)

// ToolCategory represents the category a tool belongs to.
type ToolCategory string

const (
	// CategoryRepository includes tools that read the file tree directly.
	CategoryRepository ToolCategory = "repository"

	// CategorySymbols includes tools backed by the language server.
	CategorySymbols ToolCategory = "symbols"
)

// String returns the string representation of the category.
func (c ToolCategory) String() string {
	return string(c)
}

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeInt is an integer parameter.
	ParamTypeInt ParamType = "integer"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`
}

// ToolDefinition describes a tool's interface for the LLM.
//
// Serializable to JSON Schema for LLM tool calling APIs.
type ToolDefinition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category is the tool category.
	Category ToolCategory `json:"category"`
}

// RequiredParams returns the required parameter names, sorted so the
// first missing parameter reported is deterministic.
func (d *ToolDefinition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}

// Tool defines the interface for executable capabilities.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool category.
	Category() ToolCategory

	// Definition returns the tool's parameter schema.
	Definition() ToolDefinition

	// Execute runs the tool with the given parameters.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   params - Input parameters (validated before call)
	//
	// Outputs:
	//   *Result - Execution result
	//   error - Non-nil if execution failed
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool succeeded.
	Success bool `json:"success"`

	// Output is the tool's output data, JSON-serializable.
	Output any `json:"output"`

	// Error contains any error message.
	Error string `json:"error,omitempty"`

	// Cached indicates if the result came from the session cache.
	Cached bool `json:"cached"`
}

// SymbolLocation is a 1-based position of a text match within a file.
type SymbolLocation struct {
	// FilePath is the repository-relative path.
	FilePath string `json:"file_path"`

	// Row is the 1-based line number.
	Row int `json:"row"`

	// Column is the 1-based column number.
	Column int `json:"column"`
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	// Parameter is the parameter name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Parameter + ": " + e.Message
}
