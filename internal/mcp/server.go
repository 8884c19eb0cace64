// Package mcp exposes ciquery as tools over line-delimited JSON-RPC on
// stdio, following the Model Context Protocol handshake.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"ciquery/internal/config"
	"ciquery/internal/query"

	"github.com/rs/zerolog/log"
)

const protocolVersion = "2024-11-05"

// JSONRPCRequest represents a standard MCP/JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a standard MCP/JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// Runner executes queries. *query.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, opts query.Options) (*query.Report, error)
}

// Server holds the state for the MCP server.
type Server struct {
	cfg     *config.AppConfig
	runner  Runner
	version string

	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewServer creates a server reading stdin and writing stdout.
func NewServer(cfg *config.AppConfig, runner Runner, version string) *Server {
	return &Server{cfg: cfg, runner: runner, version: version, in: os.Stdin, out: os.Stdout}
}

// Serve runs the JSON-RPC loop until the input is closed or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	reader := bufio.NewReader(s.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var req JSONRPCRequest
			if uerr := json.Unmarshal(line, &req); uerr != nil {
				log.Error().Err(uerr).Msg("Failed to unmarshal request")
			} else {
				s.handleRequest(ctx, req)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req JSONRPCRequest) {
	// Notifications carry no id and get no response.
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		log.Debug().Str("method", req.Method).Msg("Notification received")
		return
	}

	var result interface{}
	var errRes interface{}

	switch req.Method {
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "ciquery",
				"version": s.version,
			},
		}
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, errRes = s.callTool(ctx, req.Params)
	default:
		errRes = map[string]interface{}{
			"code":    -32601,
			"message": fmt.Sprintf("Method %s not found", req.Method),
		}
	}

	s.write(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   errRes,
	})
}

func (s *Server) write(resp JSONRPCResponse) {
	out, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s\n", out)
}
