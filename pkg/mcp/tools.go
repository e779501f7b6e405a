package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/pkg/schema"
)

const defaultListLimit = 50

// handleExport starts an export.
func (s *AmbrosiaServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	elementID, err := req.RequireString("element_id")
	if err != nil {
		return mcp.NewToolResultError("element_id is required"), nil
	}
	elementType, err := req.RequireString("element_type")
	if err != nil {
		return mcp.NewToolResultError("element_type is required"), nil
	}
	accountID, err := req.RequireString("account_id")
	if err != nil {
		return mcp.NewToolResultError("account_id is required"), nil
	}

	// Capture session mapping for completion pushes.
	s.captureSession(ctx, accountID)

	summary, startErr := s.exporter.Start(ctx, &schema.ExportRequest{
		ElementID:   elementID,
		ElementType: schema.ElementType(elementType),
		AccountID:   accountID,
		ProjectID:   req.GetString("project_id", ""),
		WorkspaceID: req.GetString("workspace_id", ""),
		ExportType:  schema.ExportType(req.GetString("export_type", string(schema.ExportTypeFull))),
		Metadata:    req.GetString("metadata", ""),
	})
	if startErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed to start: %v", startErr)), nil
	}
	return marshalResult(summary)
}

// handleStatus returns the summary and render results of an export.
func (s *AmbrosiaServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exportID, err := req.RequireString("export_id")
	if err != nil {
		return mcp.NewToolResultError("export_id is required"), nil
	}
	status, statusErr := s.exporter.Status(ctx, exportID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}
	return marshalResult(status)
}

// handleErrors returns render and reducer errors together.
func (s *AmbrosiaServer) handleErrors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exportID, err := req.RequireString("export_id")
	if err != nil {
		return mcp.NewToolResultError("export_id is required"), nil
	}
	renderErrs, rErr := s.exporter.GetExportErrors(ctx, exportID)
	if rErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error query failed: %v", rErr)), nil
	}
	reducerErrs, dErr := s.exporter.GetAmbrosiaReducerErrors(ctx, exportID)
	if dErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reducer error query failed: %v", dErr)), nil
	}
	if renderErrs == nil {
		renderErrs = []*schema.ExportErrorNotification{}
	}
	if reducerErrs == nil {
		reducerErrs = []*schema.AmbrosiaReducerErrorLog{}
	}
	return marshalResult(map[string]any{
		"export_id":      exportID,
		"render_errors":  renderErrs,
		"reducer_errors": reducerErrs,
	})
}

// handleList lists export summaries.
func (s *AmbrosiaServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	filter := store.SummaryFilter{
		ProjectID:   req.GetString("project_id", ""),
		WorkspaceID: req.GetString("workspace_id", ""),
		AccountID:   req.GetString("account_id", ""),
		Limit:       extractInt(args, "limit", defaultListLimit),
		Offset:      extractInt(args, "offset", 0),
	}
	if st := req.GetString("status", ""); st != "" {
		status := schema.ExportStatus(st)
		filter.Status = &status
	}
	summaries, err := s.exporter.ListSummaries(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if summaries == nil {
		summaries = []*schema.ExportSummary{}
	}
	return marshalResult(map[string]any{"exports": summaries, "count": len(summaries)})
}

// handleInspect evaluates a jq query against a finished artifact.
func (s *AmbrosiaServer) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exportID, err := req.RequireString("export_id")
	if err != nil {
		return mcp.NewToolResultError("export_id is required"), nil
	}
	if s.inspector == nil {
		return mcp.NewToolResultError("artifact inspection is not configured"), nil
	}
	query := req.GetString("query", ".")
	out, inspErr := s.inspector.Inspect(ctx, exportID, query)
	if inspErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", inspErr)), nil
	}
	if out == nil {
		out = []any{}
	}
	return marshalResult(map[string]any{"export_id": exportID, "query": query, "results": out})
}

// extractInt safely extracts an integer from a tool argument map.
func extractInt(args map[string]any, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the account to its current MCP session for notifications.
func (s *AmbrosiaServer) captureSession(ctx context.Context, accountID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(accountID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
