package api

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/cod-population/pkg/kit"
)

// RegisterMCPTools registers the inspection tools on the server.
func RegisterMCPTools(srv *server.MCPServer, eps *Endpoints) {
	kit.RegisterMCPTool(srv, mcp.NewTool("classify_headers",
		mcp.WithDescription("Classify the column headers of a subnational population file: admin p-code and name columns per level, demographic columns, and unrecognized columns."),
		mcp.WithString("headers", mcp.Required(), mcp.Description("Comma-separated column headers, in file order")),
		mcp.WithNumber("level", mcp.Required(), mcp.Description("Admin level of the file (0-4)")),
		mcp.WithString("non_latin", mcp.Description("Comma-separated non-Latin script suffixes (e.g. ar,ru); defaults to the configured list")),
	), eps.ClassifyHeaders, decodeClassifyHeaders)

	kit.RegisterMCPTool(srv, mcp.NewTool("decode_header",
		mcp.WithDescription("Decode a demographic column header such as F_15_19 or T_80PLUS into gender and age range."),
		mcp.WithString("header", mcp.Required(), mcp.Description("The column header to decode")),
	), eps.DecodeHeader, decodeDecodeHeader)

	kit.RegisterMCPTool(srv, mcp.NewTool("latest_run",
		mcp.WithDescription("Report of the most recent consolidation run: status, selected resources and diagnostics."),
	), eps.LatestRun, kit.NoArgs)

	kit.RegisterMCPTool(srv, mcp.NewTool("list_runs",
		mcp.WithDescription("Recent consolidation runs, newest first, with status and row and diagnostic counts."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (1-100, default 20)")),
	), eps.ListRuns, decodeListRuns)
}

func decodeListRuns(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	limit, _ := req.GetArguments()["limit"].(float64)
	if limit != float64(int(limit)) {
		return nil, fmt.Errorf("limit must be a whole number, got %v", limit)
	}
	return &kit.MCPDecodeResult{Request: &listRunsReq{Limit: int(limit)}}, nil
}

func decodeClassifyHeaders(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := req.GetArguments()
	headersStr, _ := args["headers"].(string)
	level, _ := args["level"].(float64)
	r := &classifyHeadersReq{
		Headers: splitArg(headersStr),
		Level:   int(level),
	}
	if v, _ := args["non_latin"].(string); v != "" {
		r.NonLatin = splitArg(v)
	}
	return &kit.MCPDecodeResult{Request: r}, nil
}

func decodeDecodeHeader(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	h, _ := req.GetArguments()["header"].(string)
	return &kit.MCPDecodeResult{Request: &decodeHeaderReq{Header: strings.TrimSpace(h)}}, nil
}

func splitArg(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
