package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/staticql/staticql/internal/mcp"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	tools []mcp.Tool
	err   error
}

func (h *fakeHandler) ListTools() []mcp.Tool { return h.tools }
func (h *fakeHandler) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if h.err != nil {
		return nil, h.err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "ok"}}}, nil
}
func (h *fakeHandler) ListResources() []mcp.Resource { return nil }
func (h *fakeHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, errNotFound
}

var errNotFound = jsonRPCErr("not found")

type jsonRPCErr string

func (e jsonRPCErr) Error() string { return string(e) }

func newTestServer(handler mcp.Handler) *mcp.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mcp.NewServer("test-server", "0.0.1", handler, logger)
}

func runLine(t *testing.T, server *mcp.Server, request string) map[string]interface{} {
	t.Helper()
	in := strings.NewReader(request + "\n")
	var out bytes.Buffer
	err := server.Run(context.Background(), in, &out)
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	return resp
}

func TestServerHandlesPing(t *testing.T) {
	server := newTestServer(&fakeHandler{})
	resp := runLine(t, server, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Nil(t, resp["error"])
}

func TestServerHandlesToolsList(t *testing.T) {
	server := newTestServer(&fakeHandler{tools: []mcp.Tool{{Name: "query"}}})
	resp := runLine(t, server, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	tools, ok := result["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, tools, 1)
}

func TestServerUnknownMethodReturnsMethodNotFound(t *testing.T) {
	server := newTestServer(&fakeHandler{})
	resp := runLine(t, server, `{"jsonrpc":"2.0","id":1,"method":"bogus"}`)
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(mcp.ErrCodeMethodNotFound), errObj["code"])
}

type fakeTransportLogger struct {
	operations []string
}

func (f *fakeTransportLogger) LogError(operation, message string) {
	f.operations = append(f.operations, operation)
}

func TestServerLogsTransportErrorOnUnknownMethod(t *testing.T) {
	metrics := &fakeTransportLogger{}
	server := newTestServer(&fakeHandler{}).WithMetrics(metrics)
	runLine(t, server, `{"jsonrpc":"2.0","id":1,"method":"bogus"}`)
	require.Contains(t, metrics.operations, "dispatch")
}

func TestServerLogsTransportErrorOnToolCallFailure(t *testing.T) {
	metrics := &fakeTransportLogger{}
	server := newTestServer(&fakeHandler{err: jsonRPCErr("boom")}).WithMetrics(metrics)
	resp := runLine(t, server, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"query","arguments":{}}}`)

	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, result["isError"])
	require.Contains(t, metrics.operations, "tools/call:query")
}

func TestServerParseErrorSendsJSONRPCError(t *testing.T) {
	server := newTestServer(&fakeHandler{})
	resp := runLine(t, server, `not json`)
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(mcp.ErrCodeParse), errObj["code"])
}
