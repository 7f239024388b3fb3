package prep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ProjectPlaceholder is replaced by the project id in a repository URL template.
const ProjectPlaceholder = "{project}"

var (
	ErrNoRepositoryURL = errors.New("no repository url template configured")
	ErrGitCommand      = errors.New("git command failed")
)

// Checkout materializes a project's repository at repoPath with branch checked out.
type Checkout interface {
	Checkout(ctx context.Context, projectID, repoPath, branch string) error
}

// GitCheckout clones on first use and fetches afterwards, then resets branch
// onto the remote default branch.
type GitCheckout struct {
	urlTemplate string
}

// NewGitCheckout takes a URL template such as "git@github.com:{project}.git".
func NewGitCheckout(urlTemplate string) *GitCheckout {
	return &GitCheckout{urlTemplate: urlTemplate}
}

func (g *GitCheckout) RepositoryURL(projectID string) string {
	return strings.ReplaceAll(g.urlTemplate, ProjectPlaceholder, projectID)
}

func (g *GitCheckout) Checkout(ctx context.Context, projectID, repoPath, branch string) error {
	if g.urlTemplate == "" {
		return ErrNoRepositoryURL
	}

	_, err := os.Stat(filepath.Join(repoPath, ".git"))

	switch {
	case err == nil:
		if _, err := runGit(ctx, repoPath, "fetch", "--prune", "origin"); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(repoPath), 0750); err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}

		if _, err := runGit(ctx, filepath.Dir(repoPath), "clone", g.RepositoryURL(projectID), repoPath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("failed to inspect %s: %w", repoPath, err)
	}

	_, err = runGit(ctx, repoPath, "checkout", "--force", "--no-track", "-B", branch, "origin/HEAD")

	return err
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), ErrGitCommand)
	}

	return strings.TrimSpace(stdout.String()), nil
}
