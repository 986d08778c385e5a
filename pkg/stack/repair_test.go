package stack

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonlogicaldev/stgit-go/modules/patch"
)

func TestRepairAutoNoDrift(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t, "main")
	r.commit("root.txt", "root\n", "root")
	r.initStack(ctx)
	r.applyPatch(ctx, "topic", "a.txt", "a\n", "add a")

	var messages []string
	err := Repair(ctx, r.gitDir, r.branch, RepairOptions{Quiet: true}, func(format string, args ...any) {
		messages = append(messages, format)
	})
	require.NoError(t, err)

	snap, _, err := LoadSnapshot(ctx, r.gitDir, r.branch)
	require.NoError(t, err)
	assert.Equal(t, []patch.Name{"topic"}, snap.Applied())
	assert.Empty(t, snap.Unapplied())
	assert.Empty(t, snap.Hidden())
}

func TestRepairAutoPatchifiesForeignCommit(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t, "main")
	r.commit("root.txt", "root\n", "root")
	r.initStack(ctx)
	r.applyPatch(ctx, "topic", "a.txt", "a\n", "add a")

	// Simulate a plain `git commit` made directly on the branch, bypassing
	// the stack's own apply path: the stack state still only knows about
	// "topic", but the branch has moved one commit further.
	foreign := r.commit("b.txt", "b\n", "add b directly")
	assert.NotEmpty(t, foreign)

	err := Repair(ctx, r.gitDir, r.branch, RepairOptions{Quiet: true}, func(string, ...any) {})
	require.NoError(t, err)

	snap, _, err := LoadSnapshot(ctx, r.gitDir, r.branch)
	require.NoError(t, err)
	assert.Equal(t, []patch.Name{"topic", "add-b-directly"}, snap.Applied())
}

func TestRepairResetRewindsToBase(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t, "main")
	root := r.commit("root.txt", "root\n", "root")
	r.initStack(ctx)
	r.applyPatch(ctx, "topic", "a.txt", "a\n", "add a")
	// Drift the branch past the registered top with a plain commit, so
	// branch_head != head and --reset has actual work to do.
	r.commit("b.txt", "b\n", "add b directly")

	err := Repair(ctx, r.gitDir, r.branch, RepairOptions{Reset: true}, func(string, ...any) {})
	require.NoError(t, err)

	snap, _, err := LoadSnapshot(ctx, r.gitDir, r.branch)
	require.NoError(t, err)
	assert.Empty(t, snap.Applied())
	assert.ElementsMatch(t, []patch.Name{"topic"}, snap.Unapplied())
	assert.Equal(t, root, snap.Base())
	assert.Equal(t, root, snap.Head())
	assert.Equal(t, r.head(), snap.BranchHead())
}

func TestRepairResetAlreadyMatchingIsNoop(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t, "main")
	r.commit("root.txt", "root\n", "root")
	r.initStack(ctx)
	r.applyPatch(ctx, "topic", "a.txt", "a\n", "add a")

	var messages []string
	err := Repair(ctx, r.gitDir, r.branch, RepairOptions{Reset: true}, func(format string, args ...any) {
		messages = append(messages, format)
	})
	require.NoError(t, err)
	assert.Contains(t, messages, "already matching")

	snap, _, err := LoadSnapshot(ctx, r.gitDir, r.branch)
	require.NoError(t, err)
	assert.Equal(t, []patch.Name{"topic"}, snap.Applied())
}

func TestRepairAutoHidesPatchesBehindMerge(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t, "main")
	root := r.commit("root.txt", "root\n", "root")
	r.initStack(ctx)
	r.applyPatch(ctx, "a", "a.txt", "a\n", "add a")
	r.applyPatch(ctx, "b", "b.txt", "b\n", "add b")

	// Fork a side branch off the root and merge it back with --no-ff, so
	// the branch tip becomes a genuine merge commit whose first parent is
	// "b" — the walk must stop at the merge without ever reaching "a"/"b"
	// via the first-parent chain, the "hard part" this engine exists for.
	r.git("checkout", "-q", "-b", "side", string(root))
	r.commit("side.txt", "side\n", "side change")
	r.git("checkout", "-q", r.branch)
	r.git("merge", "--no-ff", "-q", "-m", "merge side", "side")

	var messages []string
	err := Repair(ctx, r.gitDir, r.branch, RepairOptions{Quiet: true}, func(format string, args ...any) {
		messages = append(messages, fmt.Sprintf(format, args...))
	})
	require.NoError(t, err)

	foundMergeWarning := false
	for _, m := range messages {
		if strings.Contains(m, "hidden below the merge commit") {
			foundMergeWarning = true
			assert.Contains(t, m, "2 patch(es)")
		}
	}
	assert.True(t, foundMergeWarning, "expected a merge-hidden warning, got: %v", messages)

	snap, _, err := LoadSnapshot(ctx, r.gitDir, r.branch)
	require.NoError(t, err)
	assert.Empty(t, snap.Applied(), "walk stops at the merge before reaching any applied patch")
	assert.Equal(t, []patch.Name{"a", "b"}, snap.Unapplied(), "patches displaced behind a merge flow into unapplied, per the merge-above-patches case")
	assert.Empty(t, snap.Hidden())
}

func TestRepairRefusesProtectedStack(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t, "main")
	r.commit("root.txt", "root\n", "root")
	r.initStack(ctx)

	err := Repair(ctx, r.gitDir, r.branch, RepairOptions{Protected: true}, func(string, ...any) {})
	assert.True(t, IsProtectedStack(err))
}
