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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ServerState represents the lifecycle state of a server process.
type ServerState int

const (
	// ServerStateStarting means the process is spawning or initializing.
	ServerStateStarting ServerState = iota

	// ServerStateReady means the initialize handshake completed.
	ServerStateReady

	// ServerStateStopped means the process has exited or was shut down.
	ServerStateStopped
)

// String returns the human-readable state name.
func (s ServerState) String() string {
	switch s {
	case ServerStateStarting:
		return "starting"
	case ServerStateReady:
		return "ready"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// jsonrpcMessage is the wire format for both directions.
type jsonrpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError is a JSON-RPC error object.
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server wraps a single language server subprocess speaking LSP over stdio.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	config   LanguageConfig
	rootPath string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu       sync.Mutex
	state    ServerState
	nextID   int64
	pending  map[int64]chan *jsonrpcMessage
	opened   map[string]bool
	lastUsed time.Time

	writeMu sync.Mutex
	done    chan struct{}
}

// NewServer creates a server for the given configuration and workspace root.
// The process is not started until Start is called.
func NewServer(config LanguageConfig, rootPath string) *Server {
	return &Server{
		config:   config,
		rootPath: rootPath,
		state:    ServerStateStarting,
		pending:  make(map[int64]chan *jsonrpcMessage),
		opened:   make(map[string]bool),
		lastUsed: time.Now(),
		done:     make(chan struct{}),
	}
}

// Start spawns the server process and performs the initialize handshake.
//
// Description:
//
//	Looks up the server binary, starts the subprocess, begins the read
//	loop, and sends initialize followed by the initialized notification.
//	On any failure the process is reaped and the server is left stopped.
//
// Inputs:
//
//	ctx - Context bounding the startup, including the handshake.
//
// Outputs:
//
//	error - ErrServerNotInstalled, ErrInitializeFailed, or nil.
func (s *Server) Start(ctx context.Context) error {
	if _, err := exec.LookPath(s.config.Command); err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.config.Command)
	}

	cmd := exec.Command(s.config.Command, s.config.Args...)
	cmd.Dir = s.rootPath

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: stdin: %v", ErrInitializeFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: stdout: %v", ErrInitializeFailed, err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)

	go s.readLoop()

	initParams := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   pathToURI(s.rootPath),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"documentSymbol": map[string]any{
					"hierarchicalDocumentSymbolSupport": true,
				},
				"references": map[string]any{},
			},
		},
	}

	if _, err := s.Request(ctx, "initialize", initParams); err != nil {
		_ = s.kill()
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}
	if err := s.Notify("initialized", map[string]any{}); err != nil {
		_ = s.kill()
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	s.setState(ServerStateReady)
	slog.Debug("Language server ready",
		slog.String("language", s.config.Language),
		slog.String("command", s.config.Command),
	)
	return nil
}

// State returns the current lifecycle state.
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastUsed returns the time of the most recent request.
func (s *Server) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Server) setState(state ServerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Request sends a JSON-RPC request and waits for the matching response.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	method - The LSP method name.
//	params - The request parameters, marshaled as JSON.
//
// Outputs:
//
//	json.RawMessage - The raw result payload.
//	error - ErrServerStopped, ErrRequestFailed, or a context error.
//
// Thread Safety: Safe for concurrent use.
func (s *Server) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.state == ServerStateStopped {
		s.mu.Unlock()
		return nil, ErrServerStopped
	}
	s.nextID++
	id := s.nextID
	ch := make(chan *jsonrpcMessage, 1)
	s.pending[id] = ch
	s.lastUsed = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal params: %v", ErrRequestFailed, err)
	}

	msg := jsonrpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}
	if err := s.write(&msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrServerStopped
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s (%d)", ErrRequestFailed, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
}

// Notify sends a JSON-RPC notification. No response is expected.
func (s *Server) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: marshal params: %v", ErrRequestFailed, err)
	}
	msg := jsonrpcMessage{JSONRPC: "2.0", Method: method, Params: raw}
	return s.write(&msg)
}

// EnsureOpen sends textDocument/didOpen for the file if not already sent.
//
// Description:
//
//	Most servers require a didOpen before answering documentSymbol or
//	references for a file. The open set is tracked per server so each
//	file is opened at most once.
//
// Inputs:
//
//	absPath - Absolute path of the file to open.
//
// Outputs:
//
//	error - Non-nil if the file is unreadable or the write failed.
func (s *Server) EnsureOpen(absPath string) error {
	s.mu.Lock()
	if s.opened[absPath] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	content, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	err = s.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        pathToURI(absPath),
			"languageId": s.config.Language,
			"version":    1,
			"text":       string(content),
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.opened[absPath] = true
	s.mu.Unlock()
	return nil
}

// Shutdown performs the LSP shutdown sequence and reaps the process.
//
// Description:
//
//	Sends shutdown (bounded by ctx), then the exit notification, closes
//	stdin, and waits briefly for the process to exit before killing it.
//	Idempotent: a stopped server returns nil.
//
// Thread Safety: Safe for concurrent use.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == ServerStateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = ServerStateStopped
	s.mu.Unlock()

	// Best effort: servers that already died will fail these writes.
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, _ = s.Request(shutdownCtx, "shutdown", nil)
	cancel()
	_ = s.Notify("exit", nil)

	return s.kill()
}

// kill closes the pipes and reaps the subprocess.
func (s *Server) kill() error {
	s.setState(ServerStateStopped)

	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()

	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	waited := make(chan error, 1)
	go func() { waited <- s.cmd.Wait() }()

	select {
	case err := <-waited:
		return err
	case <-time.After(3 * time.Second):
		_ = s.cmd.Process.Kill()
		return <-waited
	}
}

// write frames and writes one message. Serialized so concurrent requests
// cannot interleave frames.
func (s *Server) write(msg *jsonrpcMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrRequestFailed, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := fmt.Fprintf(s.stdin, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return ErrServerStopped
	}
	if _, err := s.stdin.Write(body); err != nil {
		return ErrServerStopped
	}
	return nil
}

// readLoop reads framed messages until the process closes stdout.
func (s *Server) readLoop() {
	for {
		msg, err := s.readMessage()
		if err != nil {
			s.setState(ServerStateStopped)
			s.mu.Lock()
			select {
			case <-s.done:
			default:
				close(s.done)
			}
			s.mu.Unlock()
			return
		}

		switch {
		case msg.ID != nil && msg.Method == "":
			// Response to one of our requests.
			s.mu.Lock()
			ch, ok := s.pending[*msg.ID]
			s.mu.Unlock()
			if ok {
				ch <- msg
			}

		case msg.ID != nil:
			// Server-to-client request (e.g. workspace/configuration).
			// Answer with null so the server does not block on us.
			reply := jsonrpcMessage{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage("null")}
			_ = s.write(&reply)

		default:
			// Notification (diagnostics, progress). Not our concern.
		}
	}
}

// readMessage reads one Content-Length framed message.
func (s *Server) readMessage() (*jsonrpcMessage, error) {
	contentLength := 0
	for {
		line, err := s.stdout.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			contentLength, err = strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("bad Content-Length header: %q", line)
			}
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.stdout, body); err != nil {
		return nil, err
	}

	var msg jsonrpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// languageFromPath maps a file path to its language identifier using the
// registry, or "" when the extension is unknown.
func languageFromPath(configs *ConfigRegistry, path string) string {
	lang, ok := configs.LanguageForExtension(filepath.Ext(path))
	if !ok {
		return ""
	}
	return lang
}
