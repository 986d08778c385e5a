package stackcfg

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// initTestRepo returns the .git directory path, matching the convention
// used throughout pkg/stack and pkg/stackcfg: repoPath is always the
// resolved git directory, not the worktree root.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(arg ...string) {
		cmd := exec.Command("git", arg...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.name", "Test")
	run("config", "user.email", "test@example.com")
	return filepath.Join(dir, ".git")
}

func TestLoadDefaults(t *testing.T) {
	dir := initTestRepo(t)
	cfg := Load(context.Background(), dir)
	require.Equal(t, defaultPatchNameLengthLimit, cfg.PatchNameLengthLimit)
	require.False(t, cfg.CommitterDateIsAuthorDate)
	require.Empty(t, cfg.ProtectedBranches)
}

func TestLoadPatchNameLengthLimit(t *testing.T) {
	dir := initTestRepo(t)
	cmd := exec.Command("git", "config", "stack.patchnamelength", "30")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	cfg := Load(context.Background(), dir)
	require.Equal(t, 30, cfg.PatchNameLengthLimit)
}

func TestLoadCommitterDateIsAuthorDate(t *testing.T) {
	dir := initTestRepo(t)
	cmd := exec.Command("git", "config", "stack.committerdateisauthordate", "true")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	cfg := Load(context.Background(), dir)
	require.True(t, cfg.CommitterDateIsAuthorDate)
}

func TestLoadProtectedBranches(t *testing.T) {
	dir := initTestRepo(t)
	add := exec.Command("git", "config", "--add", "stack.protect", "main,release")
	add.Dir = dir
	require.NoError(t, add.Run())
	add2 := exec.Command("git", "config", "--add", "stack.protect", "hotfix")
	add2.Dir = dir
	require.NoError(t, add2.Run())

	cfg := Load(context.Background(), dir)
	require.True(t, cfg.IsProtected("main"))
	require.True(t, cfg.IsProtected("release"))
	require.True(t, cfg.IsProtected("hotfix"))
	require.False(t, cfg.IsProtected("other"))
}
