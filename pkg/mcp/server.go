package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ambrosia/internal/export"
	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/pkg/schema"
)

// Exporter is the orchestrator surface the tools drive.
// Satisfied by *export.Service.
type Exporter interface {
	Start(ctx context.Context, req *schema.ExportRequest) (*schema.ExportSummary, error)
	Status(ctx context.Context, exportID string) (*export.Status, error)
	GetExportErrors(ctx context.Context, exportID string) ([]*schema.ExportErrorNotification, error)
	GetAmbrosiaReducerErrors(ctx context.Context, exportID string) ([]*schema.AmbrosiaReducerErrorLog, error)
	ListSummaries(ctx context.Context, filter store.SummaryFilter) ([]*schema.ExportSummary, error)
}

// Inspector runs jq queries over finished artifacts.
// Satisfied by *export.Inspector.
type Inspector interface {
	Inspect(ctx context.Context, exportID, query string) ([]any, error)
}

// AmbrosiaServerDeps holds the dependencies for creating an AmbrosiaServer.
type AmbrosiaServerDeps struct {
	Exporter  Exporter
	Inspector Inspector
	Sessions  *SessionRegistry
	Logger    *slog.Logger
}

// AmbrosiaServer wraps an MCP server with export tool handlers.
type AmbrosiaServer struct {
	exporter  Exporter
	inspector Inspector
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewAmbrosiaServer creates a new AmbrosiaServer with all 5 tools registered.
func NewAmbrosiaServer(deps AmbrosiaServerDeps) *AmbrosiaServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry()
	}

	s := &AmbrosiaServer{
		exporter:  deps.Exporter,
		inspector: deps.Inspector,
		sessions:  sessions,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"ambrosia",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Ambrosia exports courseware trees into a single ambrosia document. Use ambrosia.export to start an export, ambrosia.status to follow its render requests, ambrosia.errors to diagnose failures, ambrosia.list to browse exports and ambrosia.inspect to query a finished artifact with jq."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *AmbrosiaServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *AmbrosiaServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the account to session registry.
func (s *AmbrosiaServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *AmbrosiaServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: errorsTool(), Handler: s.handleErrors},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: inspectTool(), Handler: s.handleInspect},
	}
}

// --- Tool definitions ---

func exportTool() mcp.Tool {
	return mcp.NewTool("ambrosia.export",
		mcp.WithDescription("Export a courseware element and its subtree into an ambrosia document"),
		mcp.WithString("element_id", mcp.Required(), mcp.Description("ID of the root element to export")),
		mcp.WithString("element_type", mcp.Required(),
			mcp.Enum(string(schema.ElementTypeActivity), string(schema.ElementTypePathway),
				string(schema.ElementTypeInteractive), string(schema.ElementTypeComponent)),
			mcp.Description("Type of the root element"),
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("ID of the requesting account")),
		mcp.WithString("project_id", mcp.Description("Project the export is listed under")),
		mcp.WithString("workspace_id", mcp.Description("Workspace the export is listed under")),
		mcp.WithString("export_type", mcp.Enum(string(schema.ExportTypeFull), string(schema.ExportTypePreview)),
			mcp.Description("Artifact flavour (default: FULL)")),
		mcp.WithString("metadata", mcp.Description("Opaque metadata copied into the artifact")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("ambrosia.status",
		mcp.WithDescription("Get export status and per-element render results"),
		mcp.WithString("export_id", mcp.Required(), mcp.Description("ID of the export to query")),
	)
}

func errorsTool() mcp.Tool {
	return mcp.NewTool("ambrosia.errors",
		mcp.WithDescription("List render and reducer errors of an export"),
		mcp.WithString("export_id", mcp.Required(), mcp.Description("ID of the export to query")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("ambrosia.list",
		mcp.WithDescription("List exports by project, workspace or account"),
		mcp.WithString("project_id", mcp.Description("Filter by project")),
		mcp.WithString("workspace_id", mcp.Description("Filter by workspace")),
		mcp.WithString("account_id", mcp.Description("Filter by account")),
		mcp.WithString("status", mcp.Enum(string(schema.ExportStatusInProgress), string(schema.ExportStatusCompleted), string(schema.ExportStatusFailed)),
			mcp.Description("Filter by status")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of exports (default: 50)")),
		mcp.WithNumber("offset", mcp.Description("Number of exports to skip")),
	)
}

func inspectTool() mcp.Tool {
	return mcp.NewTool("ambrosia.inspect",
		mcp.WithDescription("Run a jq query against the artifact of a completed export"),
		mcp.WithString("export_id", mcp.Required(), mcp.Description("ID of a completed export")),
		mcp.WithString("query", mcp.Description("jq expression (default: .)")),
	)
}
