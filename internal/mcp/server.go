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
	"strings"

	"daraja-mcp/internal/logcontext"
	"daraja-mcp/internal/store"
	"daraja-mcp/internal/tools"
)

// Server speaks newline-delimited JSON-RPC 2.0 with the assistant host.
type Server struct {
	dispatcher *tools.Dispatcher
	store      *store.Store
	logger     *slog.Logger
}

func NewServer(dispatcher *tools.Dispatcher, store *store.Store, logger *slog.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
	}
}

// Run serves requests from r until EOF or ctx is done. Only protocol messages are
// written to w.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if resp := s.HandleMessage(ctx, line); resp != nil {
				if werr := writeResponse(w, resp); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.InfoContext(ctx, "MCP input closed")
				return nil
			}
			return err
		}
	}
}

// HandleMessage processes one raw message. It returns nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.WarnContext(ctx, "Error parsing MCP message", "error", err)
		return errorResponse(nil, codeParseError, "Parse error")
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("method", req.Method))
	s.logger.DebugContext(ctx, "MCP request", "id", req.ID)

	// a message without an id is a notification and is never answered
	if req.ID == nil {
		if req.Method == "tools/call" {
			s.callTool(ctx, &req)
		}
		return nil
	}

	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: serverVersion},
			Capabilities:    ServerCapabilities{Tools: &struct{}{}, Resources: &struct{}{}},
		})
	case "ping":
		return result(req.ID, struct{}{})
	case "tools/list":
		return result(req.ID, map[string]any{"tools": s.dispatcher.Definitions()})
	case "tools/call":
		return s.callTool(ctx, &req)
	case "resources/list":
		return result(req.ID, ListResourcesResult{Resources: resources})
	case "resources/read":
		return s.readResource(&req)
	}

	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	return errorResponse(req.ID, codeMethodNotFound, "Method not found")
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params")
	}

	res, err := s.dispatcher.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *tools.UnknownToolError
		text := "Error: " + err.Error()
		if errors.As(err, &unknown) {
			text = err.Error()
		}
		return result(req.ID, CallToolResult{Content: textContent(text), IsError: true})
	}

	return result(req.ID, CallToolResult{Content: textContent(res.Text), IsError: res.IsError})
}

func (s *Server) readResource(req *Request) *Response {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params")
	}

	text, ok := readResource(s.store, params.URI)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("Unknown resource: %s", params.URI))
	}

	return result(req.ID, ReadResourceResult{Contents: []ResourceContents{{
		URI:      params.URI,
		MimeType: jsonMimeType,
		Text:     text,
	}}})
}

func textContent(text string) []Content {
	return []Content{{Type: "text", Text: text}}
}

func result(id any, v any) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: v}
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: &Error{Code: code, Message: message}}
}

func writeResponse(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
