package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPServerProtocol(t *testing.T) {
	projectRoot := getProjectRoot()
	binPath := filepath.Join(t.TempDir(), "staticql-mcp")
	build := exec.Command("go", "build", "-o", binPath, "./cmd/staticql-mcp")
	build.Dir = projectRoot
	output, err := build.CombinedOutput()
	require.NoError(t, err, "build failed: %s", output)

	root := t.TempDir()
	writeFixtures(t, root, herbsConfig, herbFixtures)

	cliBin := buildCLI(t)
	runStaticql(t, cliBin, root, "generate-index", "herbs", "--root", root)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logPath := filepath.Join(t.TempDir(), "server.log")
	mcpCmd := exec.CommandContext(ctx, binPath, "serve",
		"--config", filepath.Join(root, "staticql.yaml"),
		"--root", root,
		"--log-file", logPath,
	)
	mcpCmd.Env = os.Environ()

	stdin, err := mcpCmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := mcpCmd.StdoutPipe()
	require.NoError(t, err)

	require.NoError(t, mcpCmd.Start())
	defer func() {
		stdin.Close()
		mcpCmd.Process.Kill()
		mcpCmd.Wait()
	}()

	reader := bufio.NewReader(stdout)

	t.Run("initialize", func(t *testing.T) {
		sendJSONRPC(t, stdin, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "initialize",
			"params": map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]interface{}{},
				"clientInfo": map[string]interface{}{
					"name":    "test-client",
					"version": "1.0.0",
				},
			},
		})
		resp := readJSONRPC(t, reader)

		assert.Equal(t, "2.0", resp["jsonrpc"])
		assert.Equal(t, float64(1), resp["id"])
		assert.Nil(t, resp["error"])

		result, ok := resp["result"].(map[string]interface{})
		require.True(t, ok, "result should be object")
		assert.Equal(t, "2024-11-05", result["protocolVersion"])

		serverInfo, ok := result["serverInfo"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "staticql-mcp", serverInfo["name"])
	})

	sendJSONRPC(t, stdin, map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "initialized",
	})

	t.Run("tools/list", func(t *testing.T) {
		sendJSONRPC(t, stdin, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      2,
			"method":  "tools/list",
		})

		resp := readJSONRPC(t, reader)
		assert.Equal(t, float64(2), resp["id"])
		assert.Nil(t, resp["error"])

		result, ok := resp["result"].(map[string]interface{})
		require.True(t, ok)

		tools, ok := result["tools"].([]interface{})
		require.True(t, ok)
		require.Len(t, tools, 1, "should have 1 tool")

		tool := tools[0].(map[string]interface{})
		assert.Equal(t, "query", tool["name"])

		inputSchema, ok := tool["inputSchema"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "object", inputSchema["type"])

		props, ok := inputSchema["properties"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, props, "source")
		assert.Contains(t, props, "where")
		assert.Contains(t, props, "join")
		assert.Contains(t, props, "orderBy")
		assert.Contains(t, props, "cursor")
	})

	t.Run("resources/list", func(t *testing.T) {
		sendJSONRPC(t, stdin, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      3,
			"method":  "resources/list",
		})

		resp := readJSONRPC(t, reader)
		assert.Equal(t, float64(3), resp["id"])
		assert.Nil(t, resp["error"])

		result, ok := resp["result"].(map[string]interface{})
		require.True(t, ok)

		resources, ok := result["resources"].([]interface{})
		require.True(t, ok)
		assert.Len(t, resources, 0, "no resources are exposed")
	})

	t.Run("tools/call query", func(t *testing.T) {
		sendJSONRPC(t, stdin, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      4,
			"method":  "tools/call",
			"params": map[string]interface{}{
				"name": "query",
				"arguments": map[string]interface{}{
					"source": "herbs",
					"slug":   "arctium-lappa",
				},
			},
		})

		resp := readJSONRPC(t, reader)
		assert.Equal(t, float64(4), resp["id"])
		assert.Nil(t, resp["error"])

		result, ok := resp["result"].(map[string]interface{})
		require.True(t, ok)

		content, ok := result["content"].([]interface{})
		require.True(t, ok)
		require.Len(t, content, 1)

		firstContent := content[0].(map[string]interface{})
		assert.Equal(t, "text", firstContent["type"])

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(firstContent["text"].(string)), &body))
		assert.Equal(t, true, body["found"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "ゴボウ", data["name"])
	})

	t.Run("unknown method", func(t *testing.T) {
		sendJSONRPC(t, stdin, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      5,
			"method":  "nonexistent/method",
		})

		resp := readJSONRPC(t, reader)
		assert.Equal(t, float64(5), resp["id"])

		errObj, ok := resp["error"].(map[string]interface{})
		require.True(t, ok, "should have error")
		assert.Equal(t, float64(-32601), errObj["code"], "should be method not found error")
	})
}

func sendJSONRPC(t *testing.T, w io.Writer, msg map[string]interface{}) {
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = w.Write(append(data, '\n'))
	require.NoError(t, err)
}

func readJSONRPC(t *testing.T, r *bufio.Reader) map[string]interface{} {
	done := make(chan []byte, 1)
	errCh := make(chan error, 1)

	go func() {
		line, err := r.ReadBytes('\n')
		if err != nil {
			errCh <- err
			return
		}
		done <- line
	}()

	select {
	case line := <-done:
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &resp))
		return resp
	case err := <-errCh:
		require.NoError(t, err, "failed to read response")
		return nil
	case <-time.After(10 * time.Second):
		require.Fail(t, "timeout waiting for response")
		return nil
	}
}
