// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcp implements the tool-protocol transport: a JSON-RPC 2.0 server
// speaking newline-delimited messages over stdio. It owns the tool table,
// validates tool arguments against their schemas and emits the
// tools/list_changed notification when the table grows at runtime.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"

	"github.com/Azure/connections-mcp/internal/metrics"
)

// protocolVersion is the tool-protocol revision this server speaks.
const protocolVersion = "2024-11-05"

// methodToolsListChanged is the notification sent when the tool table grows.
// Clients match it literally.
const methodToolsListChanged = "notifications/tools/list_changed"

// maxLineBytes bounds a single request line. Tool arguments carry whole
// email bodies, so the default scanner limit is far too small.
const maxLineBytes = 16 * 1024 * 1024

// ErrToolExists is returned by RegisterTool when the name is taken.
var ErrToolExists = errors.New("tool already registered")

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// HandlerFunc executes a tool call with validated parameters. Handlers
// report failures through the result's error flag, never by panicking; the
// client must always receive a well-formed response.
type HandlerFunc func(ctx context.Context, params map[string]any) *Result

// Tool couples a name, a description, an input schema and a handler.
type Tool struct {
	Name        string
	Description string
	Schema      *Schema
	Handler     HandlerFunc
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is the outcome of a tool call.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewTextResult wraps text as a successful single-block result.
func NewTextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// NewErrorResult wraps a formatted message as an error-flagged result.
func NewErrorResult(format string, a ...any) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}

// Server is the stdio tool-protocol endpoint. Requests are handled one at a
// time in arrival order; handlers run to completion before the next request
// is read.
type Server struct {
	name    string
	version string
	logger  *slog.Logger
	emitter metrics.Emitter

	mutex sync.RWMutex
	tools map[string]*Tool
	order []string

	outMu sync.Mutex
	out   io.Writer
}

// NewServer returns a Server that advertises name and version during
// initialization.
func NewServer(name, version string, logger *slog.Logger, emitter metrics.Emitter) *Server {
	if emitter == nil {
		emitter = metrics.Noop{}
	}
	return &Server{
		name:    name,
		version: version,
		logger:  logger,
		emitter: emitter,
		tools:   make(map[string]*Tool),
	}
}

// RegisterTool adds a tool to the table. Names must match the external
// naming pattern and be unique; a duplicate returns ErrToolExists.
func (s *Server) RegisterTool(tool Tool) error {
	if !toolNamePattern.MatchString(tool.Name) {
		return fmt.Errorf("invalid tool name %q", tool.Name)
	}
	if tool.Schema == nil {
		tool.Schema = NewSchema()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.tools[tool.Name]; exists {
		return fmt.Errorf("registering %q: %w", tool.Name, ErrToolExists)
	}
	s.tools[tool.Name] = &tool
	s.order = append(s.order, tool.Name)
	return nil
}

// HasTool reports whether name is registered.
func (s *Server) HasTool(name string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, exists := s.tools[name]
	return exists
}

// NotifyToolListChanged emits the list-changed notification. Before Serve
// attaches a transport this is a no-op, so startup registration stays quiet.
func (s *Server) NotifyToolListChanged() {
	s.outMu.Lock()
	attached := s.out != nil
	s.outMu.Unlock()
	if !attached {
		return
	}

	if err := s.write(rpcNotification{JSONRPC: "2.0", Method: methodToolsListChanged}); err != nil {
		s.logger.Warn("failed to send list_changed notification", "error", err.Error())
		return
	}
	s.logger.Debug("sent notification", "method", methodToolsListChanged)
}

// Serve reads newline-delimited JSON-RPC messages from in and writes
// replies to out until in is closed or ctx is canceled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.outMu.Lock()
	s.out = out
	s.outMu.Unlock()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading transport: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.respondError(json.RawMessage("null"), codeParseError, "parse error")
		return
	}

	s.logger.Debug("handling request", "rpc_method", req.Method)

	if req.isNotification() {
		// notifications/initialized and friends need no reply.
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "ping":
		s.respond(req.ID, struct{}{})
	case "tools/list":
		s.respond(req.ID, toolsListResult{Tools: s.descriptors()})
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		s.respondError(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleInitialize(req rpcRequest) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.respondError(req.ID, codeInvalidParams, "malformed initialize params")
			return
		}
	}
	s.logger.Info("client connected",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"client_protocol", params.ProtocolVersion)

	s.respond(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    capabilities{Tools: toolsCapability{ListChanged: true}},
		ServerInfo:      serverInfo{Name: s.name, Version: s.version},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req rpcRequest) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.respondError(req.ID, codeInvalidParams, "malformed tools/call params")
		return
	}

	s.mutex.RLock()
	tool, exists := s.tools[params.Name]
	s.mutex.RUnlock()
	if !exists {
		s.respondError(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name))
		return
	}

	arguments := map[string]any{}
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &arguments); err != nil {
			s.respondError(req.ID, codeInvalidParams, "tool arguments must be an object")
			return
		}
	}

	validated, err := tool.Schema.Validate(arguments)
	if err != nil {
		// Validation failures are tool-level errors, not protocol errors:
		// the model reads them and corrects its arguments.
		s.countInvocation(params.Name, "invalid")
		s.respond(req.ID, NewErrorResult("Invalid arguments for tool %s: %s", params.Name, err))
		return
	}

	result := tool.Handler(ctx, validated)
	if result == nil {
		result = NewErrorResult("Tool %s returned no result", params.Name)
	}

	outcome := "success"
	if result.IsError {
		outcome = "error"
	}
	s.countInvocation(params.Name, outcome)
	s.respond(req.ID, result)
}

func (s *Server) countInvocation(tool, outcome string) {
	s.emitter.AddCounter(metrics.ToolInvocationsTotal, 1, map[string]string{
		"tool":    tool,
		"outcome": outcome,
	})
}

func (s *Server) descriptors() []toolDescriptor {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	descriptors := make([]toolDescriptor, 0, len(s.order))
	for _, name := range s.order {
		tool := s.tools[name]
		descriptors = append(descriptors, toolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Schema,
		})
	}
	return descriptors
}

func (s *Server) respond(id json.RawMessage, result any) {
	if err := s.write(rpcResponse{JSONRPC: "2.0", ID: id, Result: result}); err != nil {
		s.logger.Error("failed to write response", "error", err.Error())
	}
}

func (s *Server) respondError(id json.RawMessage, code int, message string) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	err := s.write(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
	if err != nil {
		s.logger.Error("failed to write error response", "error", err.Error())
	}
}

func (s *Server) write(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	data = append(data, '\n')

	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, err = s.out.Write(data)
	return err
}
