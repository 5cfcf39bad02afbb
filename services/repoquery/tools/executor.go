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
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")

	// ErrExecutionFailed indicates tool execution failed.
	ErrExecutionFailed = errors.New("tool execution failed")
)

// Executor dispatches tool invocations with validation and memoization.
//
// Description:
//
//	The executor owns the session's memoization cache: results are keyed
//	on (tool name, sorted argument tuple) and never expire for the life
//	of the executor. A repeated invocation returns the first result even
//	if the repository changed in between; staleness is the accepted price
//	for determinism and for not re-running expensive symbol lookups.
//
//	One executor is created per session. Caches are never shared across
//	sessions, so a stale answer cannot leak between conversations.
//
// Thread Safety:
//
//	Executor is safe for concurrent use.
type Executor struct {
	registry *Registry

	mu    sync.RWMutex
	cache map[string]*Result
}

// NewExecutor creates a tool executor with an empty session cache.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		cache:    make(map[string]*Result),
	}
}

// Execute runs a tool by name with the given arguments.
//
// Description:
//
//	Looks up the tool, validates the arguments against its definition,
//	consults the session cache, and runs the tool on a miss. Successful
//	results enter the cache; failures are not cached so the model may
//	retry after correcting itself.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	name - The tool name, as issued by the model.
//	params - The argument mapping from the tool call request.
//
// Outputs:
//
//	*Result - The execution result.
//	error - ErrToolNotFound, ErrValidationFailed, or ErrExecutionFailed.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	logger := slog.With("tool", name)

	tool, ok := e.registry.Get(name)
	if !ok {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if err := e.validateParams(tool, params); err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	key := cacheKey(name, params)

	e.mu.RLock()
	cached, hit := e.cache[key]
	e.mu.RUnlock()
	if hit {
		logger.Debug("Session cache hit")
		result := *cached
		result.Cached = true
		return &result, nil
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		logger.Error("Tool execution failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	if result.Success {
		e.mu.Lock()
		e.cache[key] = result
		e.mu.Unlock()
	}

	logger.Debug("Tool executed", "success", result.Success)
	return result, nil
}

// Definitions returns the definitions of every registered tool.
func (e *Executor) Definitions() []ToolDefinition {
	return e.registry.GetDefinitions()
}

// validateParams validates arguments against the tool definition.
func (e *Executor) validateParams(tool Tool, params map[string]any) error {
	def := tool.Definition()

	for _, name := range def.RequiredParams() {
		if _, ok := params[name]; !ok {
			return &ValidationError{Parameter: name, Message: "required parameter missing"}
		}
	}

	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			// Models occasionally invent extra arguments; tolerate them.
			continue
		}
		if err := validateParam(name, value, paramDef); err != nil {
			return err
		}
	}

	return nil
}

// validateParam validates a single argument value.
func validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{Parameter: name, Message: "required parameter is nil"}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("expected string, got %T", value),
			}
		}
	case ParamTypeInt:
		// JSON numbers arrive as float64.
		switch value.(type) {
		case int, int64, float64:
		default:
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("expected integer, got %T", value),
			}
		}
	}
	return nil
}

// cacheKey builds a deterministic key from the tool name and arguments.
//
// Parameter keys are sorted so the same arguments always produce the same
// key regardless of map iteration order.
func cacheKey(toolName string, params map[string]any) string {
	if len(params) == 0 {
		return toolName
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return fmt.Sprintf("%s:{%s}", toolName, strings.Join(parts, ","))
}
