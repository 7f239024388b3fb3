package prep_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/devflow/pkg/nodes/prep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()

	args = append([]string{"-c", "user.name=devflow", "-c", "user.email=devflow@example.com"}, args...)
	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))

	return strings.TrimSpace(string(output))
}

func TestGitCheckout_RepositoryURL(t *testing.T) {
	t.Parallel()

	checkout := prep.NewGitCheckout("git@github.com:{project}.git")
	assert.Equal(t, "git@github.com:acme/web.git", checkout.RepositoryURL("acme/web"))
}

func TestGitCheckout_RequiresTemplate(t *testing.T) {
	t.Parallel()

	err := prep.NewGitCheckout("").Checkout(t.Context(), "acme/web", t.TempDir(), "devteam/t-1")
	require.ErrorIs(t, err, prep.ErrNoRepositoryURL)
}

func TestGitCheckout_CloneThenFetch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	t.Parallel()

	remotes := t.TempDir()
	source := filepath.Join(remotes, "acme", "web")
	require.NoError(t, os.MkdirAll(source, 0750))

	git(t, source, "init", "--quiet")
	require.NoError(t, os.WriteFile(filepath.Join(source, "package.json"), []byte(`{"name":"web"}`), 0600))
	git(t, source, "add", "package.json")
	git(t, source, "commit", "--quiet", "-m", "init")

	checkout := prep.NewGitCheckout("file://" + remotes + "/{project}")
	repoPath := filepath.Join(t.TempDir(), "acme", "web")

	require.NoError(t, checkout.Checkout(t.Context(), "acme/web", repoPath, "devteam/t-42"))
	assert.FileExists(t, filepath.Join(repoPath, "package.json"))
	assert.Equal(t, "devteam/t-42", git(t, repoPath, "rev-parse", "--abbrev-ref", "HEAD"))

	require.NoError(t, os.WriteFile(filepath.Join(source, "README.md"), []byte("web"), 0600))
	git(t, source, "add", "README.md")
	git(t, source, "commit", "--quiet", "-m", "readme")

	require.NoError(t, checkout.Checkout(t.Context(), "acme/web", repoPath, "devteam/t-43"))
	assert.FileExists(t, filepath.Join(repoPath, "README.md"))
	assert.Equal(t, "devteam/t-43", git(t, repoPath, "rev-parse", "--abbrev-ref", "HEAD"))
}
