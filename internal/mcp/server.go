// Package mcp speaks line-delimited JSON-RPC over stdio and dispatches each
// request to a Handler. The transport here knows nothing about static-content
// sources or queries; QueryHandler (query_handler.go) is the one piece in
// this package that does.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Request is a JSON-RPC 2.0 request or notification (Method set, ID nil).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Result and Error are mutually exclusive.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, per the spec.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// ServerInfo identifies this server to a connecting client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies the connecting client, as sent in InitializeParams.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the payload of an "initialize" request.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// InitializeResult answers an "initialize" request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerCapabilities declares what a client can expect to find here: this
// server always advertises both, since QueryHandler implements both methods
// of the Handler interface (ListResources simply returns an empty slice).
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// Tool describes one callable tool, rendered for a client's tools/list call.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is a (deliberately small) JSON-schema subset: an object with
// named string-ish properties. staticql's one tool takes flags, not nested
// structures, so richer schema shapes are not needed here.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the payload of a "tools/call" request.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallToolResult carries a tool's output back to the client. IsError marks a
// tool-level failure (still a JSON-RPC success envelope, per the MCP spec);
// transport-level failures use Response.Error instead.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Resource describes a static, addressable piece of content. QueryHandler
// advertises none: every source is reached through the query tool instead.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

type ReadResourceParams struct {
	URI string `json:"uri"`
}

type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Handler serves the tool and resource methods of the MCP protocol. Server
// owns the wire format; Handler owns everything domain-specific.
type Handler interface {
	ListTools() []Tool
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error)
	ListResources() []Resource
	ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error)
}

// TransportLogger records protocol-level failures (bad JSON, unknown method,
// malformed params) that never reach Handler, plus every error a Handler
// returns from a tool call ("tools/call:<name>") or a resource read
// ("resources/read"). Satisfied structurally by *metrics.Logger.
type TransportLogger interface {
	LogError(operation, message string)
}

// Server dispatches newline-delimited JSON-RPC requests from reader to
// handler and writes responses to writer. One Server serves one connection;
// concurrent scanner goroutines are not supported, matching the single
// stdin/stdout pipe an MCP client opens per subprocess.
type Server struct {
	name    string
	version string
	handler Handler
	logger  *slog.Logger
	metrics TransportLogger

	writer io.Writer
	mu     sync.Mutex
}

// NewServer creates a server that will identify itself as name/version and
// dispatch to handler.
func NewServer(name, version string, handler Handler, logger *slog.Logger) *Server {
	return &Server{
		name:    name,
		version: version,
		handler: handler,
		logger:  logger,
	}
}

// WithMetrics attaches a transport-error log, returning s for chaining.
func (s *Server) WithMetrics(m TransportLogger) *Server {
	s.metrics = m
	return s
}

// Run reads newline-delimited requests from reader until ctx is done, EOF,
// or a scanner error, writing each response to writer as it's produced.
func (s *Server) Run(ctx context.Context, reader io.Reader, writer io.Writer) error {
	s.writer = writer

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	s.logger.Info("mcp server started", "name", s.name, "version", s.version)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.logger.Info("server shutting down")
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		s.logger.Debug("received request", "raw", string(line))

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Error("failed to parse request", "error", err)
			s.logTransportError("parse", err)
			s.sendError(nil, ErrCodeParse, "Parse error", err.Error())
			continue
		}

		if response := s.handleRequest(ctx, &req); response != nil {
			s.sendResponse(response)
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Error("scanner error", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	s.logger.Debug("handling request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		s.logger.Info("client initialized")
		return nil
	case "tools/list":
		return s.handleListTools(req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "resources/list":
		return s.handleListResources(req)
	case "resources/read":
		return s.handleReadResource(ctx, req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	default:
		s.logger.Warn("unknown method", "method", req.Method)
		s.logTransportError("dispatch", fmt.Errorf("unknown method %q", req.Method))
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.logger.Error("failed to parse initialize params", "error", err)
		}
	}

	s.logger.Info("initializing",
		"client", params.ClientInfo.Name,
		"clientVersion", params.ClientInfo.Version,
		"protocolVersion", params.ProtocolVersion)

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities: ServerCapabilities{
				Tools:     &ToolsCapability{},
				Resources: &ResourcesCapability{},
			},
			ServerInfo: ServerInfo{Name: s.name, Version: s.version},
		},
	}
}

func (s *Server) handleListTools(req *Request) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: s.handler.ListTools()}}
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.logTransportError("tools/call", err)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: ErrCodeInvalidParams, Message: "Invalid params", Data: err.Error()},
		}
	}

	s.logger.Info("calling tool", "name", params.Name)

	result, err := s.handler.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Error("tool call failed", "name", params.Name, "error", err)
		s.logTransportError("tools/call:"+params.Name, err)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  CallToolResult{Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true},
		}
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handleListResources(req *Request) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: ListResourcesResult{Resources: s.handler.ListResources()}}
}

func (s *Server) handleReadResource(ctx context.Context, req *Request) *Response {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.logTransportError("resources/read", err)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: ErrCodeInvalidParams, Message: "Invalid params", Data: err.Error()},
		}
	}

	s.logger.Info("reading resource", "uri", params.URI)

	result, err := s.handler.ReadResource(ctx, params.URI)
	if err != nil {
		s.logger.Error("resource read failed", "uri", params.URI, "error", err)
		s.logTransportError("resources/read", err)
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: ErrCodeInternal, Message: "Resource read failed", Data: err.Error()},
		}
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) logTransportError(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.LogError(operation, err.Error())
}

func (s *Server) sendResponse(resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return
	}

	s.logger.Debug("sending response", "raw", string(data))
	if _, err := fmt.Fprintf(s.writer, "%s\n", data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) sendError(id interface{}, code int, message, data string) {
	s.sendResponse(&Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}})
}
