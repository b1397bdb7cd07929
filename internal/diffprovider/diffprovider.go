// Package diffprovider implements the diff-provider contract:
// diffLines(baseRef, headRef) and gitShow(rev, path), reporting path-level
// VCS changes by shelling out to git the same way internal/sync's watch
// daemon reads the current HEAD. No other package in this module calls it:
// the watch daemon does a full rebuild on a HEAD change, and no code turns
// its Changes into indexer DiffEntry batches.
package diffprovider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ChangeStatus classifies one line of `git diff --name-status`.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "A"
	StatusModified ChangeStatus = "M"
	StatusDeleted  ChangeStatus = "D"
)

// Change is one path-level change between two refs.
type Change struct {
	Status ChangeStatus
	Path   string
}

// Provider supplies path-level VCS state between two refs.
type Provider interface {
	DiffLines(ctx context.Context, baseRef, headRef string) ([]Change, error)
	GitShow(ctx context.Context, rev, path string) ([]byte, error)
}

// GitProvider shells out to a local git checkout.
type GitProvider struct {
	RepoPath string
}

// NewGitProvider creates a Provider backed by the git checkout at repoPath.
func NewGitProvider(repoPath string) *GitProvider {
	return &GitProvider{RepoPath: repoPath}
}

// DiffLines runs `git diff --name-status baseRef headRef` and parses the
// resulting status lines.
func (g *GitProvider) DiffLines(ctx context.Context, baseRef, headRef string) ([]Change, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", g.RepoPath, "diff", "--name-status", baseRef, headRef)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s %s: %w", baseRef, headRef, err)
	}

	var changes []Change
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		status := ChangeStatus(strings.TrimSpace(fields[0])[:1])
		changes = append(changes, Change{Status: status, Path: fields[1]})
	}
	return changes, nil
}

// GitShow returns the content of path as of rev, via `git show rev:path`.
func (g *GitProvider) GitShow(ctx context.Context, rev, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", g.RepoPath, "show", rev+":"+path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git show %s:%s: %w: %s", rev, path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// NoopProvider reports no changes; used for filesystem-only targets that
// have no VCS history to diff against (a filesystem-walk no-op).
type NoopProvider struct{}

func (NoopProvider) DiffLines(context.Context, string, string) ([]Change, error) { return nil, nil }
func (NoopProvider) GitShow(context.Context, string, string) ([]byte, error)     { return nil, nil }
