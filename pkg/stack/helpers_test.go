package stack

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nonlogicaldev/stgit-go/modules/patch"
	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

// testRepo is a scratch, non-bare git repository with a single branch,
// used to exercise the repair and spill orchestrators against real git
// plumbing rather than a mocked Accessor.
type testRepo struct {
	t        *testing.T
	worktree string
	gitDir   string
	branch   string
}

func newTestRepo(t *testing.T, branch string) *testRepo {
	t.Helper()
	dir := t.TempDir()
	r := &testRepo{t: t, worktree: dir, branch: branch}
	r.git("init", "-q", "-b", branch)
	r.git("config", "user.name", "Test")
	r.git("config", "user.email", "test@example.com")
	r.gitDir = strings.TrimSpace(r.gitOutput("rev-parse", "--git-dir"))
	if !filepath.IsAbs(r.gitDir) {
		r.gitDir = filepath.Join(dir, r.gitDir)
	}
	return r
}

func (r *testRepo) git(args ...string) {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.worktree
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, string(out))
}

func (r *testRepo) gitOutput(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.worktree
	out, err := cmd.Output()
	require.NoError(r.t, err)
	return string(out)
}

// commit writes name with content, stages, and commits it, returning the
// new commit id.
func (r *testRepo) commit(name, content, message string) plumbing.Hash {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(r.worktree, name), []byte(content), 0644))
	r.git("add", name)
	r.git("commit", "-q", "-m", message)
	return plumbing.NewHash(strings.TrimSpace(r.gitOutput("rev-parse", "HEAD")))
}

func (r *testRepo) head() plumbing.Hash {
	r.t.Helper()
	return plumbing.NewHash(strings.TrimSpace(r.gitOutput("rev-parse", "HEAD")))
}

// initStack writes an initial stack-state commit (no patches, base==head==
// branch head at the current HEAD) and points refs/stacks/<branch> at it.
func (r *testRepo) initStack(ctx context.Context) {
	r.t.Helper()
	head := r.head()
	snap := patch.NewSnapshot(nil, nil, nil, map[patch.Name]plumbing.Hash{}, head, head, head)
	commitID, err := WriteStackStateCommit(ctx, r.gitDir, snap, plumbing.ZeroHash, "init")
	require.NoError(r.t, err)
	r.git("update-ref", StackRefName(r.branch), string(commitID))
}

// applyPatch creates a commit on top of HEAD, records it as a new applied
// patch in the stack state, and advances the branch ref to match (mirroring
// what a "new"/"refresh" command would have already done before repair or
// spill ever runs).
func (r *testRepo) applyPatch(ctx context.Context, name patch.Name, file, content, message string) plumbing.Hash {
	r.t.Helper()
	commitID := r.commit(file, content, message)

	snap, prevStack, err := LoadSnapshot(ctx, r.gitDir, r.branch)
	require.NoError(r.t, err)

	commits := map[patch.Name]plumbing.Hash{}
	for _, n := range snap.AllPatches() {
		commits[n] = snap.CommitOf(n)
	}
	commits[name] = commitID
	applied := append(append([]patch.Name{}, snap.Applied()...), name)
	newSnap := patch.NewSnapshot(applied, snap.Unapplied(), snap.Hidden(), commits, snap.Base(), commitID, commitID)

	newStackCommit, err := WriteStackStateCommit(ctx, r.gitDir, newSnap, prevStack, "apply "+string(name))
	require.NoError(r.t, err)
	r.git("update-ref", StackRefName(r.branch), string(newStackCommit), string(prevStack))
	return commitID
}
