// Package mcpserver exposes extraction as an MCP tool over SSE.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentxtractor/internal/browser"
	"github.com/hyperifyio/contentxtractor/internal/extract"
)

// ToolName is the name clients call.
const ToolName = "extract"

// Service is what the tool needs from the application.
type Service interface {
	Extract(ctx context.Context, req extract.Request) (extract.Result, error)
	BaseRequest() extract.Request
}

// MCPServer wraps an mcp-go server with the extract tool registered.
type MCPServer struct {
	addr string
	svc  Service
	mcp  *server.MCPServer
	sse  *server.SSEServer
}

// New creates the MCP server and registers the tool. Nothing listens until
// Start is called.
func New(addr string, svc Service, version string) *MCPServer {
	s := &MCPServer{addr: addr, svc: svc}
	s.mcp = server.NewMCPServer(
		"contentxtractor",
		version,
		server.WithLogging(),
		server.WithRecovery(),
	)
	s.mcp.AddTool(extractTool(), s.handleExtract)
	s.sse = server.NewSSEServer(s.mcp)
	return s
}

func extractTool() mcp.Tool {
	waits := make([]string, 0, len(browser.WaitUntilValues()))
	for _, w := range browser.WaitUntilValues() {
		waits = append(waits, string(w))
	}
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Open a web page in the browser's reading mode and return its main content as Markdown, with the links found on the page and the outcome of the page request"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the page"),
		),
		mcp.WithNumber("width",
			mcp.Description("Viewport width in pixels"),
		),
		mcp.WithNumber("height",
			mcp.Description("Viewport height in pixels"),
		),
		mcp.WithBoolean("disableLinks",
			mcp.Description("Render links as plain text in the reading mode output"),
		),
		mcp.WithBoolean("returnRawHtml",
			mcp.Description("Also return the HTML of the loaded page"),
		),
		mcp.WithString("waitUntil",
			mcp.Description("Navigation completion condition"),
			mcp.Enum(waits...),
		),
		mcp.WithNumber("readingModeTimeout",
			mcp.Description("Milliseconds to wait for reading mode before falling back to the page body"),
		),
	)
}

// handleExtract runs one extraction. Failures the model can act on are
// reported as tool errors rather than protocol errors.
func (s *MCPServer) handleExtract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.requestFrom(request.Params.Arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	log.Info().Str("url", req.URL).Msg("mcp extract")

	res, err := s.svc.Extract(ctx, req)
	if err != nil {
		if extract.IsKind(err, extract.KindCanceled) && ctx.Err() != nil {
			return nil, err
		}
		return mcp.NewToolResultError(fmt.Sprintf("extract %s: %v", req.URL, err)), nil
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// requestFrom maps the flat tool arguments onto the request wire format and
// decodes it over the service defaults.
func (s *MCPServer) requestFrom(args map[string]interface{}) (extract.Request, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return extract.Request{}, errors.New("missing or invalid url")
	}
	base := s.svc.BaseRequest()
	wire := map[string]interface{}{"url": url}
	for _, k := range []string{"disableLinks", "returnRawHtml", "waitUntil", "readingModeTimeout"} {
		if v, ok := args[k]; ok && v != nil {
			wire[k] = v
		}
	}
	w, wok := args["width"].(float64)
	h, hok := args["height"].(float64)
	if wok || hok {
		vp := base.Viewport
		if wok {
			vp.Width = int(w)
		}
		if hok {
			vp.Height = int(h)
		}
		wire["viewPortOptions"] = vp
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return extract.Request{}, err
	}
	req, err := extract.DecodeRequest(b, base)
	if err != nil {
		return extract.Request{}, err
	}
	if err := req.Validate(); err != nil {
		return extract.Request{}, err
	}
	return req, nil
}

// Start listens on addr and serves SSE until Shutdown.
func (s *MCPServer) Start() error {
	log.Info().Str("addr", s.addr).Msg("mcp server listening")
	return s.sse.Start(s.addr)
}

// Shutdown stops the SSE listener and closes client sessions.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}
