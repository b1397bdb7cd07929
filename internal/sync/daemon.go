// Package sync provides the watch daemon: it polls a source's repository
// for a VCS head change on an interval and triggers a full rebuild of the
// prefix-shard index when one is seen.
package sync

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/staticql/staticql/internal/indexer"
)

// Daemon watches one or more source repositories and rebuilds on change.
type Daemon struct {
	watches  []SourceWatch
	interval time.Duration
	indexer  *indexer.Indexer
	logger   *slog.Logger
	headHash map[string]string // source name -> last known HEAD hash
}

// SourceWatch pairs a configured source name with the repository path
// whose git HEAD gates rebuilds of it.
type SourceWatch struct {
	SourceName string
	RepoPath   string
}

// NewDaemon creates a watch daemon over watches, rebuilding via idx on an
// interval tick.
func NewDaemon(watches []SourceWatch, interval time.Duration, idx *indexer.Indexer, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		watches:  watches,
		interval: interval,
		indexer:  idx,
		logger:   logger,
		headHash: make(map[string]string),
	}
}

// Run blocks until ctx is canceled, polling every interval (with an
// immediate first pass).
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("starting watch daemon", "interval", d.interval, "sources", len(d.watches))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.syncAll(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("watch daemon shutting down")
			return ctx.Err()
		case <-ticker.C:
			d.syncAll(ctx)
		}
	}
}

func (d *Daemon) syncAll(ctx context.Context) {
	for _, w := range d.watches {
		if err := d.syncSource(ctx, w); err != nil {
			d.logger.Error("sync failed", "source", w.SourceName, "error", err)
		}
	}
}

func (d *Daemon) syncSource(ctx context.Context, w SourceWatch) error {
	d.logger.Debug("checking source", "name", w.SourceName)

	currentHead, err := d.getGitHead(w.RepoPath)
	if err != nil {
		return fmt.Errorf("get HEAD for %s: %w", w.SourceName, err)
	}

	cachedHead := d.headHash[w.SourceName]
	if currentHead == cachedHead {
		d.logger.Debug("source unchanged", "name", w.SourceName)
		return nil
	}

	d.logger.Info("source changed, rebuilding",
		"name", w.SourceName, "old_head", truncateHash(cachedHead), "new_head", truncateHash(currentHead))

	stats, err := d.indexer.Build(ctx, w.SourceName)
	if err != nil {
		return fmt.Errorf("build %s: %w", w.SourceName, err)
	}

	d.logger.Info("rebuild complete",
		"source", w.SourceName,
		"records", stats.RecordsIndexed,
		"fields", stats.FieldsWritten,
	)

	d.headHash[w.SourceName] = currentHead
	return nil
}

// getGitHead returns the current HEAD commit hash of repoPath, shelling
// out to git and falling back to reading .git/HEAD directly if git is
// unavailable.
func (d *Daemon) getGitHead(repoPath string) (string, error) {
	cmd := exec.Command("git", "-C", repoPath, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err == nil {
		return strings.TrimSpace(string(output)), nil
	}

	headPath := filepath.Join(repoPath, ".git", "HEAD")
	headData, err := os.ReadFile(headPath)
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(string(headData))

	if strings.HasPrefix(content, "ref: ") {
		refPath := strings.TrimPrefix(content, "ref: ")
		refFile := filepath.Join(repoPath, ".git", refPath)
		refData, err := os.ReadFile(refFile)
		if err != nil {
			h := sha256.Sum256([]byte(content))
			return fmt.Sprintf("%x", h[:8]), nil
		}
		return strings.TrimSpace(string(refData)), nil
	}

	return content, nil
}

func truncateHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
