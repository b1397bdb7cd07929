package sync

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonGetGitHead(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := exec.Command("git", "init")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "config", "user.email", "test@test.com")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "config", "user.name", "Test")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	testFile := filepath.Join(tmpDir, "test.md")
	require.NoError(t, os.WriteFile(testFile, []byte("---\nslug: a\n---\n"), 0644))

	cmd = exec.Command("git", "add", ".")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "commit", "-m", "initial")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	daemon := &Daemon{logger: logger, headHash: make(map[string]string)}

	head, err := daemon.getGitHead(tmpDir)
	require.NoError(t, err)
	assert.Len(t, head, 40, "HEAD should be 40 char hash")
}

func TestDaemonDetectsChange(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := exec.Command("git", "init")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "config", "user.email", "test@test.com")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "config", "user.name", "Test")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	testFile := filepath.Join(tmpDir, "recipe.md")
	require.NoError(t, os.WriteFile(testFile, []byte("---\nslug: a\n---\n"), 0644))

	cmd = exec.Command("git", "add", ".")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "commit", "-m", "initial")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	daemon := &Daemon{logger: logger, headHash: make(map[string]string)}

	head1, err := daemon.getGitHead(tmpDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(testFile, []byte("---\nslug: a\ntitle: updated\n---\n"), 0644))

	cmd = exec.Command("git", "add", ".")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "commit", "-m", "update")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run())

	head2, err := daemon.getGitHead(tmpDir)
	require.NoError(t, err)

	assert.NotEqual(t, head1, head2, "HEAD should change after commit")
}

func TestNewDaemon(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	watches := []SourceWatch{
		{SourceName: "recipes", RepoPath: "/tmp/test"},
	}

	// Note: we can't fully exercise a rebuild without a real indexer, so
	// this just verifies structure.
	daemon := NewDaemon(watches, time.Minute, nil, logger)

	assert.Len(t, daemon.watches, 1)
	assert.Equal(t, time.Minute, daemon.interval)
	assert.NotNil(t, daemon.headHash)
}

func TestTruncateHash(t *testing.T) {
	assert.Equal(t, "abc12345", truncateHash("abc12345678901234567890"))
	assert.Equal(t, "short", truncateHash("short"))
	assert.Equal(t, "", truncateHash(""))
}

func TestDaemonRunCancellation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	daemon := NewDaemon([]SourceWatch{}, time.Hour, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error)
	go func() {
		done <- daemon.Run(ctx)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
}
