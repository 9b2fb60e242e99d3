// Package mcp exposes deviation search and brainstorming as Model Context
// Protocol tools over JSON-RPC 2.0.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/middleware"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
	"github.com/arturoeanton/go-deviation-rag/internal/service"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// Server serves the MCP tools on its own port.
type Server struct {
	similarity  *retrieval.SimilarityService
	ingest      *service.IngestService
	brainstorm  *service.BrainstormService
	audit       middleware.AuditWriter
	defaultTopK int
	port        string

	tools  []tool
	byName map[string]tool
}

// NewServer creates an MCP server. audit may be nil.
func NewServer(
	similarity *retrieval.SimilarityService,
	ingest *service.IngestService,
	brainstorm *service.BrainstormService,
	audit middleware.AuditWriter,
	defaultTopK int,
	port string,
) *Server {
	if defaultTopK <= 0 {
		defaultTopK = retrieval.DefaultTopK
	}
	s := &Server{
		similarity:  similarity,
		ingest:      ingest,
		brainstorm:  brainstorm,
		audit:       audit,
		defaultTopK: defaultTopK,
		port:        port,
	}
	s.tools = s.registry()
	s.byName = make(map[string]tool, len(s.tools))
	for _, t := range s.tools {
		s.byName[t.Name] = t
	}
	return s
}

// Handler returns the MCP HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", s.handleRPC)
	mux.HandleFunc("GET /mcp/sse", s.handleSSE)
	return mux
}

// Start listens on the configured port until the listener fails.
func (s *Server) Start() error {
	slog.Info("MCP server starting", "port", s.port, "tools", len(s.tools))
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, Response{Error: &RPCError{Code: codeParseError, Message: "parse error"}})
		return
	}

	result, err := s.dispatch(r, req)
	if err != nil {
		rpcErr := &RPCError{Code: codeInternalError, Message: err.Error()}
		errors.As(err, &rpcErr)
		slog.Warn("MCP request failed", "method", req.Method, "code", rpcErr.Code, "error", err)
		writeResponse(w, Response{ID: req.ID, Error: rpcErr})
		return
	}
	writeResponse(w, Response{ID: req.ID, Result: result})
}

func (s *Server) dispatch(r *http.Request, req Request) (any, error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": "deviation-rag", "version": "1.0.0"},
			"capabilities":    map[string]any{"tools": map[string]bool{"listChanged": false}},
		}, nil
	case "tools/list":
		defs := make([]Tool, len(s.tools))
		for i, t := range s.tools {
			defs[i] = t.Tool
		}
		return map[string]any{"tools": defs}, nil
	case "tools/call":
		return s.callTool(r, req.Params)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) callTool(r *http.Request, params json.RawMessage) (any, error) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	t, ok := s.byName[call.Name]
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "unknown tool: " + call.Name}
	}
	s.record(r, call.Name)
	return t.call(r.Context(), call.Arguments)
}

// handleSSE announces the RPC endpoint and holds the stream open.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprint(w, "event: endpoint\ndata: /mcp\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
}

func (s *Server) record(r *http.Request, toolName string) {
	if s.audit == nil {
		return
	}
	actor := r.Header.Get(middleware.ActorHeader)
	if actor == "" {
		actor = "mcp"
	}
	ip, userAgent := r.RemoteAddr, r.UserAgent()
	go func() {
		if err := s.audit.WriteAudit(actor, domain.AuditActionMCPCall, "mcp", toolName, "{}", ip, userAgent); err != nil {
			slog.Error("failed to write audit log", "error", err)
		}
	}()
}

func writeResponse(w http.ResponseWriter, resp Response) {
	resp.JSONRPC = "2.0"
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to write MCP response", "error", err)
	}
}
