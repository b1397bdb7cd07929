package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexer"
	"github.com/staticql/staticql/internal/loader"
	"github.com/staticql/staticql/internal/mcp"
	"github.com/staticql/staticql/internal/parser"
	"github.com/staticql/staticql/internal/query"
	"github.com/staticql/staticql/internal/relation"
	"github.com/staticql/staticql/internal/repository"
)

const herbsYAML = `
output_dir: ./index-build
sources:
  herbs:
    pattern: "herbs/*.md"
    type: markdown
    index:
      name:
        depth: 2
`

func newTestQueryEngine(t *testing.T) *query.Engine {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	write("staticql.yaml", herbsYAML)
	write("herbs/arctium-lappa.md", "---\nname: ゴボウ\n---\n")
	write("herbs/centella-asiatica.md", "---\nname: アマチャヅル\n---\n")

	cfg, err := config.Load(filepath.Join(root, "staticql.yaml"))
	require.NoError(t, err)

	repo := repository.NewLocal(root)
	repo.SetResolver(cfg)
	parsers := parser.NewRegistry()
	idx := indexer.New(cfg, repo, parsers, nil)
	ld := loader.New(cfg, repo, parsers)
	rel := relation.New(cfg, idx, ld)
	qe := query.New(cfg, idx, ld, rel)

	_, err = idx.Build(context.Background(), "herbs")
	require.NoError(t, err)
	return qe
}

func TestListToolsDescribesQueryTool(t *testing.T) {
	h := mcp.NewQueryHandler(newTestQueryEngine(t))
	tools := h.ListTools()
	require.Len(t, tools, 1)
	require.Equal(t, "query", tools[0].Name)
	require.Contains(t, tools[0].InputSchema.Properties, "source")
	require.Contains(t, tools[0].InputSchema.Properties, "where")
	require.Contains(t, tools[0].InputSchema.Properties, "join")
	require.Equal(t, []string{"source"}, tools[0].InputSchema.Required)
}

func TestCallToolSlugLookup(t *testing.T) {
	h := mcp.NewQueryHandler(newTestQueryEngine(t))
	result, err := h.CallTool(context.Background(), "query", map[string]interface{}{
		"source": "herbs",
		"slug":   "arctium-lappa",
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &body))
	require.Equal(t, true, body["found"])
	data := body["data"].(map[string]interface{})
	require.Equal(t, "ゴボウ", data["name"])
}

func TestCallToolWhereFilter(t *testing.T) {
	h := mcp.NewQueryHandler(newTestQueryEngine(t))
	result, err := h.CallTool(context.Background(), "query", map[string]interface{}{
		"source": "herbs",
		"where":  `[{"field":"slug","op":"eq","value":"centella-asiatica"}]`,
	})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &body))
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	rec := data[0].(map[string]interface{})
	require.Equal(t, "アマチャヅル", rec["name"])
}

func TestCallToolUnknownToolErrors(t *testing.T) {
	h := mcp.NewQueryHandler(newTestQueryEngine(t))
	_, err := h.CallTool(context.Background(), "not-a-tool", nil)
	require.Error(t, err)
}

func TestCallToolMissingSourceErrors(t *testing.T) {
	h := mcp.NewQueryHandler(newTestQueryEngine(t))
	_, err := h.CallTool(context.Background(), "query", map[string]interface{}{})
	require.Error(t, err)
}
