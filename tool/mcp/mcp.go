// Package mcp exposes the tools of a Model Context Protocol server as
// tool.Tool values, so they can be registered next to local tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/logging"
	"github.com/funcn-ai/funcn-sub000/tool"
	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// CodeMCP marks tool errors reported by the MCP server.
const CodeMCP = "MCP_ERROR"

// Client is the subset of an MCP client the toolkit needs. *client.Client
// satisfies it.
type Client interface {
	ListTools(ctx context.Context, request mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error)
	CallTool(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
}

// Options configure a Toolkit.
type Options struct {
	// Prefix is prepended to every tool name, e.g. "fs_" for a filesystem server.
	Prefix string
	// Filter selects which server tools are exposed; nil exposes all.
	Filter func(name string) bool
	Logger logging.Logger
}

// Toolkit adapts the tools of one MCP server.
type Toolkit struct {
	client Client
	opts   Options
	logger logging.Logger

	mu    sync.Mutex
	tools []tool.Tool
}

// NewToolkit creates a toolkit over an initialized client.
func NewToolkit(c Client, optFns ...func(o *Options)) *Toolkit {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Toolkit{client: c, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Tools lists the server's tools on first use and returns them as tool.Tool
// values. Later calls return the cached list.
func (k *Toolkit) Tools(ctx context.Context) ([]tool.Tool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tools != nil {
		return k.tools, nil
	}
	res, err := k.client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}

	tools := make([]tool.Tool, 0, len(res.Tools))
	for _, def := range res.Tools {
		if k.opts.Filter != nil && !k.opts.Filter(def.Name) {
			continue
		}
		params, err := inputSchema(def)
		if err != nil {
			return nil, fmt.Errorf("mcp tool %s: %w", def.Name, err)
		}
		tools = append(tools, &remoteTool{
			toolkit: k,
			name:    k.opts.Prefix + def.Name,
			remote:  def.Name,
			desc:    def.Description,
			params:  params,
		})
	}
	k.logger.Debug("mcp.tools.listed", "count", len(tools))
	k.tools = tools
	return tools, nil
}

// Register adds every exposed tool to r.
func (k *Toolkit) Register(ctx context.Context, r *tool.Registry) error {
	tools, err := k.Tools(ctx)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// inputSchema converts the server supplied schema into a plain map.
func inputSchema(def mcptypes.Tool) (map[string]any, error) {
	var data []byte
	if def.RawInputSchema != nil {
		data = def.RawInputSchema
	} else {
		var err error
		if data, err = json.Marshal(def.InputSchema); err != nil {
			return nil, err
		}
	}
	params := map[string]any{}
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	if _, ok := params["type"]; !ok {
		params["type"] = "object"
	}
	return params, nil
}

type remoteTool struct {
	toolkit *Toolkit
	name    string
	remote  string
	desc    string
	params  map[string]any
}

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.desc }
func (t *remoteTool) Parameters() map[string]any { return t.params }

// Call forwards the call to the server. Text content is joined with
// newlines; results without text fall back to their structured content.
func (t *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	res, err := t.toolkit.client.CallTool(toolCtx.Context(), mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      t.remote,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", t.remote, err)
	}

	text := joinText(res.Content)
	if res.IsError {
		toolCtx.Logger().Warn("mcp.call.error", "tool", t.name, "fc_id", toolCtx.FunctionCallID())
		return nil, tool.NewToolError(t.name, text, CodeMCP)
	}
	if text == "" && res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return text, nil
}

func joinText(contents []mcptypes.Content) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		if tc, ok := mcptypes.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// NewStdioClient starts command as an MCP server over stdio and performs the
// initialize handshake. The caller must Close the client.
func NewStdioClient(ctx context.Context, command string, env []string, args ...string) (*client.Client, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", command, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "funcn",
				Version: "1.0.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", command, err)
	}
	return c, nil
}
