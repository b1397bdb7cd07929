package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "metrics.jsonl")

	logger, err := NewLogger(logPath)
	require.NoError(t, err)
	defer logger.Close()

	logger.LogBuild("recipes", 42, 5, 120)
	logger.LogUpdate("recipes", 2, 1, 0, 30)
	logger.LogQuery("recipes", "slug", 5, 15, true)
	logger.LogError("build", "schema validation failed")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	content := string(data)

	assert.Contains(t, content, `"event":"build"`)
	assert.Contains(t, content, `"records_indexed":42`)

	assert.Contains(t, content, `"event":"update"`)
	assert.Contains(t, content, `"added":2`)

	assert.Contains(t, content, `"event":"query"`)
	assert.Contains(t, content, `"source":"recipes"`)
	assert.Contains(t, content, `"order_by":"slug"`)
	assert.Contains(t, content, `"cache_hit":true`)

	assert.Contains(t, content, `"event":"error"`)
	assert.Contains(t, content, `"operation":"build"`)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	assert.Len(t, lines, 4)
}

func TestMetricsLoggerOmitsUnsetFields(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "metrics.jsonl")

	logger, err := NewLogger(logPath)
	require.NoError(t, err)
	defer logger.Close()

	logger.LogQuery("recipes", "slug", 0, 1, false)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)

	assert.NotContains(t, content, "cache_hit", "omitempty should drop a false cache_hit")
	assert.NotContains(t, content, "result_count", "omitempty should drop a zero result_count")
}

func TestMetricsLoggerConcurrent(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "metrics.jsonl")

	logger, err := NewLogger(logPath)
	require.NoError(t, err)
	defer logger.Close()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			logger.LogQuery("recipes", "slug", n, int64(n*10), false)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 10)
}
