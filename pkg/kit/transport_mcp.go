package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ErrInvalid marks a request rejected for its arguments. HTTP maps it to
// 400, MCP reports it as invalid arguments.
var ErrInvalid = errors.New("invalid request")

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder turns MCP tool arguments into an endpoint request.
type MCPDecoder func(mcp.CallToolRequest) (*MCPDecodeResult, error)

// NoArgs decodes tools that take no arguments.
func NoArgs(mcp.CallToolRequest) (*MCPDecodeResult, error) {
	return &MCPDecodeResult{}, nil
}

// RegisterMCPTool registers an Endpoint as an MCP tool on the given server.
func RegisterMCPTool(srv *server.MCPServer, tool mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, MCPHandler(endpoint, decode))
}

// MCPHandler adapts an Endpoint to an MCP tool handler. Every call gets a
// request ID, and failures come back as tool errors that carry it so they
// can be matched with the server log. The response is returned as JSON text.
func MCPHandler(endpoint Endpoint, decode MCPDecoder) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := GetRequestID(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		ctx = WithTransport(WithRequestID(ctx, id), "mcp")

		decoded, err := decode(req)
		if err != nil {
			return toolError(id, fmt.Errorf("%w: %w", ErrInvalid, err)), nil
		}
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return toolError(id, err), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(id, fmt.Errorf("marshal: %w", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func toolError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, ErrInvalid) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments (request %s): %v", id, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("request %s: %v", id, err))
}
