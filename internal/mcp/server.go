package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jcdickinson/symdex/internal/daemon"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/search"
)

//go:embed instructions.md
var instructions string

// backend is the part of the daemon client the MCP tools use.
type backend interface {
	Build(ctx context.Context, snapshots []rpc.SnapshotSpec, onProgress func(string)) (*rpc.BuildResponse, error)
	Lookup(ctx context.Context, req rpc.LookupRequest) (*rpc.LookupResponse, error)
	Path(ctx context.Context, req rpc.PathRequest) (*rpc.PathResponse, error)
	Inheritance(ctx context.Context, req rpc.InheritanceRequest) (*rpc.InheritanceResponse, error)
	GetDoc(ctx context.Context, req rpc.GetDocRequest) (*rpc.GetDocResponse, error)
}

type Server struct {
	mcpServer *server.MCPServer
	client    backend
}

func NewServer(socketPath string) (*Server, error) {
	client, err := daemon.ConnectOrSpawn(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return newServer(client), nil
}

func newServer(client backend) *Server {
	s := &Server{client: client}

	mcpServer := server.NewMCPServer(
		"symdex",
		"0.1.0",
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func snapshotParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("snapshot",
			mcp.Description("Snapshot name, e.g. \"fsi-suite\""),
			mcp.Required(),
		),
		mcp.WithString("version",
			mcp.Description("Snapshot version (default: latest build)"),
		),
	}
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("build_snapshot",
			mcp.WithDescription("Index documentation snapshots from a symbol manifest or Doxygen HTML output. Synchronous: returns when every snapshot is built. Built snapshots are reused unless force is set."),
			buildSchema,
		),
		s.handleBuild,
	)

	mcpServer.AddTool(
		mcp.NewTool("lookup_symbols", append(snapshotParams(),
			mcp.WithDescription("Find symbols whose name starts with the query. Use Scope::Name to narrow by enclosing namespace or class. Returns URIs that can be read as resources."),
			mcp.WithString("query",
				mcp.Description("Name prefix, optionally scoped (\"Parsed\", \"Tools::Parsed\")"),
				mcp.Required(),
			),
			mcp.WithArray("kinds",
				mcp.Description("Only return symbols of these kinds (class, struct, namespace, function, ...)"),
				mcp.WithStringItems(),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default 50)"),
			),
		)...),
		s.handleLookup,
	)

	mcpServer.AddTool(
		mcp.NewTool("hierarchy_path", append(snapshotParams(),
			mcp.WithDescription("List the namespaces and classes enclosing a symbol, outermost first, ending with the symbol itself."),
			mcp.WithString("symbol",
				mcp.Description("Fully qualified symbol name"),
				mcp.Required(),
			),
		)...),
		s.handlePath,
	)

	mcpServer.AddTool(
		mcp.NewTool("inheritance_chain", append(snapshotParams(),
			mcp.WithDescription("List the base or derived classes of a class. Transitive directions are ordered nearest first."),
			mcp.WithString("symbol",
				mcp.Description("Fully qualified class name"),
				mcp.Required(),
			),
			mcp.WithString("direction",
				mcp.Description("bases and derived are direct only; ancestors and descendants are transitive"),
				mcp.Enum(rpc.DirectionAncestors, rpc.DirectionDescendants, rpc.DirectionBases, rpc.DirectionDerived),
				mcp.DefaultString(rpc.DirectionAncestors),
			),
		)...),
		s.handleInheritance,
	)
}

func buildSchema(t *mcp.Tool) {
	t.InputSchema.Required = append(t.InputSchema.Required, "snapshots")
	t.InputSchema.Properties["snapshots"] = map[string]any{
		"type":        "array",
		"description": "Snapshots to build",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Snapshot name (default: taken from the manifest)",
				},
				"version": map[string]any{
					"type":        "string",
					"description": "Snapshot version (default: taken from the manifest)",
				},
				"manifest": map[string]any{
					"type":        "string",
					"description": "Absolute path of a YAML or JSON symbol manifest",
				},
				"doxygen": map[string]any{
					"type":        "string",
					"description": "Doxygen HTML output directory or URL",
				},
				"force": map[string]any{
					"type":        "boolean",
					"description": "Rebuild even if the snapshot is already built",
				},
			},
		},
	}
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"symdoc://{snapshot}/{version}/{+symbol}",
			"Symbol documentation page",
			mcp.WithTemplateDescription("Read the page of a symbol: kind, enclosing scopes, bases, derived classes, members and documentation locations. Lookup results return these URIs."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.handleReadResource,
	)
}

func jsonResult(v any) *mcp.CallToolResult {
	resultJSON, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(resultJSON))
}

func snapshotRef(req mcp.CallToolRequest) (rpc.SnapshotRef, error) {
	name, err := req.RequireString("snapshot")
	if err != nil || name == "" {
		return rpc.SnapshotRef{}, fmt.Errorf("missing required parameter: snapshot")
	}
	return rpc.SnapshotRef{Snapshot: name, Version: req.GetString("version", "")}, nil
}

func (s *Server) handleBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, ok := args["snapshots"]
	if !ok {
		return mcp.NewToolResultError("missing required parameter: snapshots"), nil
	}

	specsJSON, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid snapshots parameter: %v", err)), nil
	}
	var specs []rpc.SnapshotSpec
	if err := json.Unmarshal(specsJSON, &specs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid snapshots format: %v", err)), nil
	}

	resp, err := s.client.Build(ctx, specs, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build snapshots: %v", err)), nil
	}
	return jsonResult(resp.Results), nil
}

func (s *Server) handleLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := snapshotRef(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	resp, err := s.client.Lookup(ctx, rpc.LookupRequest{
		SnapshotRef: ref,
		Query:       query,
		Kinds:       req.GetStringSlice("kinds", nil),
		Limit:       req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return jsonResult(resp.Results), nil
}

func (s *Server) handlePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := snapshotRef(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	symbol := req.GetString("symbol", "")
	if symbol == "" {
		return mcp.NewToolResultError("missing required parameter: symbol"), nil
	}

	resp, err := s.client.Path(ctx, rpc.PathRequest{SnapshotRef: ref, Symbol: symbol})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("path lookup failed: %v", err)), nil
	}
	return jsonResult(resp.Path), nil
}

func (s *Server) handleInheritance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := snapshotRef(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	symbol := req.GetString("symbol", "")
	if symbol == "" {
		return mcp.NewToolResultError("missing required parameter: symbol"), nil
	}

	resp, err := s.client.Inheritance(ctx, rpc.InheritanceRequest{
		SnapshotRef: ref,
		Symbol:      symbol,
		Direction:   req.GetString("direction", rpc.DirectionAncestors),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inheritance lookup failed: %v", err)), nil
	}
	return jsonResult(resp.Results), nil
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	snapshot, version, symbol, err := search.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetDoc(ctx, rpc.GetDocRequest{
		SnapshotRef: rpc.SnapshotRef{Snapshot: snapshot, Version: version},
		Symbol:      symbol,
	})
	if err != nil {
		return nil, fmt.Errorf("getting doc: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     resp.Markdown,
		},
	}, nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
