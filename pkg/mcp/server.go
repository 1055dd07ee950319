// Package mcp serves the router as Model Context Protocol tools over
// line-delimited JSON-RPC 2.0, for use as a stdio MCP server.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/router"
	"github.com/pario-ai/relay/pkg/selector"
)

const maxLineBytes = 1 << 20

// Router is the subset of *router.Router the tools call.
type Router interface {
	Route(ctx context.Context, q models.Query, opts router.Options) (*models.Result, error)
	CheckHealth(ctx context.Context) map[models.BackendID]bool
	AllMetrics() []models.BackendMetrics
	Order(strategy selector.Strategy) []models.BackendID
	CacheStats(ctx context.Context) (models.CacheStats, error)
}

// AuditSearcher queries the route audit log.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

// Server answers MCP requests against a router.
type Server struct {
	router  Router
	auditor AuditSearcher
	logger  *zap.Logger
	version string
}

// New creates a Server. auditor and logger may be nil.
func New(rt Router, auditor AuditSearcher, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		router:  rt,
		auditor: auditor,
		logger:  logger.With(zap.String("component", "mcp")),
		version: version,
	}
}

// Run reads one request per line from r and writes responses to w. It returns
// when r is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case MethodInitialize:
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case MethodToolsList:
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case MethodToolsCall:
		return s.callTool(ctx, req)
	case MethodInitialized:
		return nil
	}
	if req.IsNotification() {
		return nil
	}
	return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
