package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/logging"
	"github.com/colthorp/planning-cli-go/internal/model"
	"github.com/colthorp/planning-cli-go/internal/output"
)

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    any           `json:"capabilities"`
}

// MCPContent is one item of a tool result.
type MCPContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// GetPlanningParams are the parameters for the get_planning tool
type GetPlanningParams struct {
	Date string `json:"date"`
}

// planningService is what the MCP server needs from planning.Service.
type planningService interface {
	Get(ctx context.Context, input string) (model.Artifact, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// mcpServer answers JSON-RPC requests read line by line. Tool calls run
// concurrently so a slow acquisition does not block other requests; writes
// to out are serialized.
type mcpServer struct {
	svc planningService
	log *logging.Logger

	mu  sync.Mutex
	out io.Writer
	wg  sync.WaitGroup
}

func newMCPServer(svc planningService, out io.Writer, log *logging.Logger) *mcpServer {
	if log == nil {
		log = logging.Discard()
	}
	return &mcpServer{svc: svc, out: out, log: log.Component("mcp")}
}

// serve reads requests from in until EOF or ctx ends, then waits for
// in-flight tool calls.
func (s *mcpServer) serve(ctx context.Context, in io.Reader) error {
	defer s.wg.Wait()

	scanner := bufio.NewScanner(in)
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			// The ID is unknown, and a response with id null confuses clients
			s.log.WithError(err).Warn("parse error")
			continue
		}

		s.handle(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *mcpServer) handle(ctx context.Context, req *MCPRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		return
	case "ping":
		s.sendResponse(req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleToolsCall(ctx, req)
		}()
	default:
		// Notifications (no ID) are silently ignored per JSON-RPC
		if req.ID != nil {
			s.sendError(req.ID, -32601, "Method not found", req.Method)
		}
	}
}

func (s *mcpServer) handleInitialize(req *MCPRequest) {
	s.sendResponse(req.ID, MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo: MCPServerInfo{
			Name:    "planning-cli",
			Version: core.Version,
		},
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
	})
}

func (s *mcpServer) handleToolsList(req *MCPRequest) {
	tools := []MCPToolInfo{
		{
			Name:        "get_planning",
			Description: "Capture the class schedule for a week.\n\nArgs:\n    date: Week offset from the current week (e.g. `1`, `-1`) or a date like `31/12/2021`. Empty means the current week.\n\nReturns:\n    A PNG screenshot of the planning and its capture time",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date": map[string]any{
						"type":        "string",
						"description": "Week offset or DD/MM/YYYY date",
						"default":     "0",
					},
				},
			},
		},
	}
	s.sendResponse(req.ID, map[string]any{"tools": tools})
}

func (s *mcpServer) handleToolsCall(ctx context.Context, req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	switch params.Name {
	case "get_planning":
		s.handleGetPlanning(ctx, req.ID, params.Arguments)
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
	}
}

func (s *mcpServer) handleGetPlanning(ctx context.Context, id any, argsJSON json.RawMessage) {
	var args GetPlanningParams
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
	}

	a, err := s.svc.Get(ctx, args.Date)
	if err != nil {
		s.log.WithError(err).Warn("get_planning failed", "date", args.Date)
		s.sendToolError(id, err.Error())
		return
	}

	data, err := s.svc.Read(ctx, a.Key)
	if err != nil {
		s.sendToolError(id, core.AcquisitionFailed("read planning", err).Error())
		return
	}

	s.sendResponse(id, map[string]any{
		"content": []MCPContent{
			{Type: "text", Text: output.Caption(a)},
			{Type: "image", Data: base64.StdEncoding.EncodeToString(data), MimeType: "image/png"},
		},
	})
}

func (s *mcpServer) write(resp MCPResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.WithError(err).Error("encode response")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(append(data, '\n'))
}

func (s *mcpServer) sendResponse(id any, result any) {
	s.write(MCPResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *mcpServer) sendError(id any, code int, message, data string) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: message, Data: data},
	})
}

func (s *mcpServer) sendToolError(id any, message string) {
	s.sendResponse(id, map[string]any{
		"content": []MCPContent{
			{Type: "text", Text: output.TruncateMessage(message, core.MaxMessageLen)},
		},
		"isError": true,
	})
}
