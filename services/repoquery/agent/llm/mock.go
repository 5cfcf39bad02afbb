// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is a scripted chat client for testing.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use.
type MockClient struct {
	mu sync.RWMutex

	// name is the provider name.
	name string

	// model is the model name.
	model string

	// responses are queued responses to return in order.
	responses []*Response

	// defaultResponse is returned when no queued responses remain.
	defaultResponse *Response

	// calls records all calls made to Chat.
	calls []ChatCall

	// responseFunc allows dynamic response generation.
	responseFunc func(*Request) (*Response, error)

	// errorToReturn causes Chat to return this error.
	errorToReturn error
}

// ChatCall records a call to Chat.
type ChatCall struct {
	Request   *Request
	Timestamp time.Time
}

// NewMockClient creates a new mock chat client.
func NewMockClient() *MockClient {
	return &MockClient{
		name:  "mock",
		model: "mock-model",
		defaultResponse: &Response{
			Content: "Mock response",
		},
		calls: make([]ChatCall, 0),
	}
}

// WithName sets the provider name.
func (c *MockClient) WithName(name string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	return c
}

// WithModel sets the model name.
func (c *MockClient) WithModel(model string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
	return c
}

// WithError configures the client to return an error.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	return c
}

// WithResponseFunc sets a dynamic response function.
func (c *MockClient) WithResponseFunc(f func(*Request) (*Response, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// QueueResponse adds a response to the queue.
func (c *MockClient) QueueResponse(response *Response) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return c
}

// QueueToolCall queues a response that invokes a single tool.
func (c *MockClient) QueueToolCall(toolName string, arguments map[string]any) *MockClient {
	c.mu.Lock()
	id := fmt.Sprintf("call_%d", len(c.responses))
	c.mu.Unlock()

	return c.QueueResponse(&Response{
		ToolCalls: []ToolCall{{
			ID:        id,
			Name:      toolName,
			Arguments: arguments,
		}},
	})
}

// QueueFinalResponse queues a text response with no tool calls.
func (c *MockClient) QueueFinalResponse(content string) *MockClient {
	return c.QueueResponse(&Response{Content: content})
}

// SetDefaultResponse sets the response returned when the queue is empty.
func (c *MockClient) SetDefaultResponse(response *Response) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultResponse = response
	return c
}

// Calls returns a copy of the recorded calls.
func (c *MockClient) Calls() []ChatCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChatCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Chat invocations.
func (c *MockClient) CallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.calls)
}

// Chat implements the Client interface.
func (c *MockClient) Chat(ctx context.Context, request *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, ChatCall{
		Request:   request,
		Timestamp: time.Now(),
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.errorToReturn != nil {
		return nil, c.errorToReturn
	}

	if c.responseFunc != nil {
		return c.responseFunc(request)
	}

	if len(c.responses) > 0 {
		response := c.responses[0]
		c.responses = c.responses[1:]
		response.Model = c.model
		return response, nil
	}

	response := *c.defaultResponse
	response.Model = c.model
	return &response, nil
}

// Name implements the Client interface.
func (c *MockClient) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Model implements the Client interface.
func (c *MockClient) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}
