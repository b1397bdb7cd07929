package docgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticql/staticql/internal/config"
)

func TestGenerate(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "staticql.yaml")
	cfgYAML := `
output_dir: ./build
sources:
  herbs:
    pattern: "content/herbs/*.md"
    type: markdown
    schema: schema/herb.json
    index:
      name: {}
  recipes:
    pattern: "content/recipes/*.md"
    type: markdown
    index:
      name: {}
    relations:
      herbs:
        to: herbs
        localKey: herbSlugs
        kind: hasMany
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	out := Generate(cfg)

	assert.Contains(t, out, "# Index manifest")
	assert.Contains(t, out, "## herbs")
	assert.Contains(t, out, "## recipes")
	assert.Contains(t, out, "`content/herbs/*.md`")
	assert.Contains(t, out, "`schema/herb.json`")
	assert.Contains(t, out, "`herbs` → `herbs` (hasMany)")
	assert.Contains(t, out, "`slug`")
	assert.Contains(t, out, "`name`")
}
