package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/metrics"
	"github.com/ravipendurty/netmiko-mcp-server/internal/session"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

const (
	resourceScheme  = "device://"
	resourceMIME    = "application/json"
	maxMessageBytes = 4 << 20
)

// Transport names recorded with every request
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Server dispatches MCP requests to the session manager
type Server struct {
	manager *session.Manager
	metrics *metrics.Metrics
	logger  *zap.Logger
	info    ServerInfo
	tools   map[string]toolHandler
}

// NewServer creates a new MCP server
func NewServer(manager *session.Manager, info ServerInfo, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if info.Name == "" {
		info.Name = "netmiko-mcp-server"
	}
	s := &Server{
		manager: manager,
		logger:  logger,
		info:    info,
	}
	s.registerTools()
	return s
}

// SetMetrics sets the request counters
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// HandleMessage decodes and dispatches one JSON-RPC message. It returns nil
// for notifications.
func (s *Server) HandleMessage(ctx context.Context, transportName string, payload []byte) *Response {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return &Response{
			JSONRPC: "2.0",
			Error:   newError(CodeParseError, "Parse error", err.Error()),
		}
	}
	return s.Handle(ctx, transportName, &req)
}

// Handle dispatches a decoded request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, transportName string, req *Request) *Response {
	s.metrics.IncrementRequests(req.Method, transportName)

	if req.IsNotification() {
		s.logger.Debug("MCP notification", zap.String("method", req.Method))
		return nil
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, newError(CodeInvalidRequest, "Invalid Request", nil))
	}

	ctx = session.WithSource(ctx, transportName, string(req.ID))

	result, rpcErr := s.dispatch(ctx, req)
	if rpcErr != nil {
		s.logger.Debug("MCP request failed",
			zap.String("method", req.Method),
			zap.Int("code", rpcErr.Code),
			zap.String("error", rpcErr.Message),
		)
		return errorResponse(req.ID, rpcErr)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: err}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "initialize":
		return s.initialize(req.Params)
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return map[string]interface{}{"tools": Tools()}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	case "resources/list":
		return map[string]interface{}{"resources": s.listResources()}, nil
	case "resources/read":
		return s.readResource(req.Params)
	default:
		return nil, newError(CodeMethodNotFound, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (s *Server) initialize(raw json.RawMessage) (interface{}, *Error) {
	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, newError(CodeInvalidParams, "Invalid params", err.Error())
		}
	}
	s.logger.Info("MCP client initialized",
		zap.String("client", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
		zap.String("protocol_version", params.ProtocolVersion),
	)
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		ServerInfo: s.info,
	}, nil
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (interface{}, *Error) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, newError(CodeInvalidParams, "Invalid params", err.Error())
	}

	handler, ok := s.tools[params.Name]
	if !ok {
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name), models.ErrUnknownTool.Error())
	}

	result, err := s.invoke(ctx, params.Name, handler, params.Arguments)
	if err != nil {
		if errors.Is(err, models.ErrInvalidArgument) {
			return nil, newError(CodeInvalidParams, "Invalid params", err.Error())
		}
		return nil, newError(CodeInternalError, "Internal error", err.Error())
	}
	return textResult(result.Message, !result.Success()), nil
}

// invoke runs a tool handler and turns a panic into an internal error so one
// bad call never takes the server down
func (s *Server) invoke(ctx context.Context, name string, handler toolHandler, args json.RawMessage) (result models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tool handler panicked", zap.String("tool", name), zap.Any("panic", r))
			err = fmt.Errorf("tool %s failed", name)
		}
	}()
	return handler(ctx, args)
}

func (s *Server) listResources() []Resource {
	devices := s.manager.ListResources()
	resources := make([]Resource, 0, len(devices))
	for _, d := range devices {
		resources = append(resources, Resource{
			URI:         resourceScheme + d.DeviceID,
			Name:        "Network Device: " + d.Host,
			Description: fmt.Sprintf("Network device %s (%s)", d.Host, d.DeviceType),
			MimeType:    resourceMIME,
		})
	}
	return resources
}

func (s *Server) readResource(raw json.RawMessage) (interface{}, *Error) {
	var params resourceReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, newError(CodeInvalidParams, "Invalid params", err.Error())
	}
	if !strings.HasPrefix(params.URI, resourceScheme) {
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Unknown resource URI: %s", params.URI), models.ErrUnknownResource.Error())
	}

	id := strings.TrimPrefix(params.URI, resourceScheme)
	device, err := s.manager.ReadResource(id)
	if err != nil {
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Device not found: %s", id), err.Error())
	}

	data, err := json.MarshalIndent(device, "", "  ")
	if err != nil {
		return nil, newError(CodeInternalError, "Internal error", err.Error())
	}
	return map[string]interface{}{
		"contents": []ResourceContents{{URI: params.URI, MimeType: resourceMIME, Text: string(data)}},
	}, nil
}

// ServeStdio reads newline-delimited messages from r and writes responses to
// w. Requests run concurrently; responses may arrive out of order. It returns
// after r is exhausted and every in-flight request has answered.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	write := func(resp *Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("Failed to encode MCP response", zap.Error(err))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(append(data, '\n')); err != nil {
			s.logger.Error("Failed to write MCP response", zap.Error(err))
		}
	}

	s.logger.Info("MCP stdio server started")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		payload := []byte(line)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := s.HandleMessage(ctx, TransportStdio, payload); resp != nil {
				write(resp)
			}
		}()

		if ctx.Err() != nil {
			break
		}
	}
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	s.logger.Info("MCP stdio input closed")
	return nil
}
