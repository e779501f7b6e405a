package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/internal/export"
	ambmcp "github.com/rendis/ambrosia/pkg/mcp"
	"github.com/rendis/ambrosia/pkg/schema"
)

const coursewareJSON = `{
	"elementId": "A", "type": "ACTIVITY",
	"children": [
		{"elementId": "C", "type": "COMPONENT"},
		{"elementId": "P", "type": "PATHWAY", "children": [
			{"elementId": "I", "type": "INTERACTIVE"}
		]}
	]
}`

var renderedSnippets = map[string]string{
	"A": `{"$ambrosia":"aero:activity","$id":"A","config":{"components":[{"itemId":"C"}],"content":{"pathwayId":"P","pathwayType":"LINEAR"}}}`,
	"C": `{"$ambrosia":"aero:component","$id":"C","config":{"text":"hello"}}`,
	"P": `{"$ambrosia":"aero:pathway:linear","$id":"P","config":{},"children":["I"]}`,
	"I": `{"$ambrosia":"aero:interactive","$id":"I","config":{"q":"?"}}`,
}

// testEnv is a fully wired app answering renders from a snippet directory.
type testEnv struct {
	app    *app
	server *ambmcp.AmbrosiaServer
}

func newTestEnv(t *testing.T, skip ...string) *testEnv {
	t.Helper()
	isolateHome(t)
	dir := t.TempDir()

	tree := filepath.Join(dir, "courseware.json")
	require.NoError(t, os.WriteFile(tree, []byte(coursewareJSON), 0o644))
	renderDir := filepath.Join(dir, "rendered")
	require.NoError(t, os.MkdirAll(renderDir, 0o755))
	for id, snippet := range renderedSnippets {
		if contains(skip, id) {
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(renderDir, id+".json"), []byte(snippet), 0o644))
	}

	v := viper.New()
	v.Set("db_path", filepath.Join(dir, "ambrosia.db"))
	v.Set("blob_root", filepath.Join(dir, "blobs"))
	v.Set("courseware_file", tree)
	v.Set("pool_size", 4)
	v.Set("redelivery.delay", time.Millisecond)
	cfg, err := loadConfig(v, "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	consumer := export.NewConsumer(a.svc)
	require.NoError(t, consumer.Start())
	t.Cleanup(consumer.Stop)

	r := newDirRenderer(afero.NewBasePathFs(afero.NewOsFs(), renderDir), a.transport, logger)
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)

	srv := ambmcp.NewAmbrosiaServer(ambmcp.AmbrosiaServerDeps{
		Exporter:  a.svc,
		Inspector: a.inspector,
		Logger:    logger,
	})
	return &testEnv{app: a, server: srv}
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

// callTool invokes a tool through the MCP server's HandleMessage (full JSON-RPC round-trip).
func (e *testEnv) callTool(t *testing.T, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	mcpSrv := e.server.MCPServer()

	rawInit, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      0,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "cmd-test", "version": "1.0.0"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, mcpSrv.HandleMessage(ctx, rawInit))

	rawReq, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": toolName, "arguments": args},
	})
	require.NoError(t, err)
	resp := mcpSrv.HandleMessage(ctx, rawReq)
	require.NotNil(t, resp)

	respBytes, err := json.Marshal(resp)
	require.NoError(t, err)
	var rpcResp struct {
		Result *mcp.CallToolResult `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))
	if rpcResp.Error != nil {
		t.Fatalf("JSON-RPC error: code=%d, msg=%s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	require.NotNil(t, rpcResp.Result)
	return rpcResp.Result
}

func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.app.transport.Flush(ctx))
}

func extractJSON(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text := mcp.GetTextFromContent(result.Content[0])
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

func (e *testEnv) startExport(t *testing.T) string {
	t.Helper()
	res := e.callTool(t, "ambrosia.export", map[string]any{
		"element_id":   "A",
		"element_type": "ACTIVITY",
		"account_id":   "acct-1",
		"project_id":   "proj-1",
	})
	require.False(t, res.IsError, mcp.GetTextFromContent(res.Content[0]))
	var summary schema.ExportSummary
	extractJSON(t, res, &summary)
	require.NotEmpty(t, summary.ID)
	e.flush(t)
	return summary.ID
}

func TestServeStackCompletesExport(t *testing.T) {
	env := newTestEnv(t)
	exportID := env.startExport(t)

	var status export.Status
	extractJSON(t, env.callTool(t, "ambrosia.status", map[string]any{"export_id": exportID}), &status)
	assert.Equal(t, schema.ExportStatusCompleted, status.Summary.Status)
	assert.NotEmpty(t, status.Summary.AmbrosiaURL)
	assert.Len(t, status.Results, 4)
	assert.Zero(t, status.Outstanding)

	var inspected struct {
		Results []any `json:"results"`
	}
	extractJSON(t, env.callTool(t, "ambrosia.inspect", map[string]any{
		"export_id": exportID,
		"query":     `.config.components[0]["$id"]`,
	}), &inspected)
	assert.Equal(t, []any{"C"}, inspected.Results)

	var listed struct {
		Count int `json:"count"`
	}
	extractJSON(t, env.callTool(t, "ambrosia.list", map[string]any{"project_id": "proj-1"}), &listed)
	assert.Equal(t, 1, listed.Count)
}

func TestServeStackMissingSnippetFailsExport(t *testing.T) {
	env := newTestEnv(t, "I")
	exportID := env.startExport(t)

	var status export.Status
	extractJSON(t, env.callTool(t, "ambrosia.status", map[string]any{"export_id": exportID}), &status)
	assert.Equal(t, schema.ExportStatusFailed, status.Summary.Status)

	var errs struct {
		RenderErrors []*schema.ExportErrorNotification `json:"render_errors"`
	}
	extractJSON(t, env.callTool(t, "ambrosia.errors", map[string]any{"export_id": exportID}), &errs)
	require.Len(t, errs.RenderErrors, 1)
	assert.Equal(t, "I", errs.RenderErrors[0].ElementID)

	res := env.callTool(t, "ambrosia.inspect", map[string]any{"export_id": exportID})
	assert.True(t, res.IsError)
}
