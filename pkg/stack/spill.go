package stack

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nonlogicaldev/stgit-go/modules/command"
	"github.com/nonlogicaldev/stgit-go/modules/git"
	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

// SpillOptions parameterise a spill run.
type SpillOptions struct {
	// Protected is the config-layer is_protected result for the branch
	// being spilled, read once at the start of the operation.
	Protected bool
	// CommitterDateIsAuthorDate stamps the rewritten patch's committer
	// time with its existing author time instead of the current time.
	CommitterDateIsAuthorDate bool
	// Pathspecs restricts the spill to files matching these paths. An
	// empty slice spills the whole patch.
	Pathspecs []string
	// Annotate, if non-empty, is appended to the reflog message.
	Annotate string
	// Reset additionally overwrites the index with the post-spill tree,
	// so the patch's changes end up only in the working tree.
	Reset bool
}

// Spill removes the topmost applied patch's tree changes (or the subset
// matching Pathspecs) while leaving them in the index and working tree,
// rewriting the patch's recorded commit to carry the parent's tree (or
// pathspec-filtered diff) instead.
func Spill(ctx context.Context, repoPath, branch string, opts SpillOptions) error {
	tx, err := SetupTransaction(ctx, repoPath, branch, opts.Protected, Options{})
	if err != nil {
		return err
	}
	snap := tx.Stack()

	if err := checkRepositoryState(repoPath); err != nil {
		return err
	}
	if err := checkNoConflicts(ctx, repoPath); err != nil {
		return err
	}
	if err := checkIndexClean(ctx, repoPath); err != nil {
		return err
	}
	if snap.BranchHead() != snap.Head() {
		return fmt.Errorf("%w: run repair first", ErrHeadTopMismatch)
	}

	applied := snap.Applied()
	if len(applied) == 0 {
		return ErrNoAppliedPatches
	}
	patchName := applied[len(applied)-1]
	patchCommit := snap.CommitOf(patchName)

	accessor, err := NewAccessor(ctx, repoPath)
	if err != nil {
		return err
	}
	defer accessor.Close()

	info, err := accessor.FindCommit(patchCommit)
	if err != nil {
		return err
	}
	parentID, ok, err := accessor.FirstParent(patchCommit)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: patch %q has no parent to spill onto", ErrRepository, patchName)
	}
	parentInfo, err := accessor.FindCommit(parentID)
	if err != nil {
		return err
	}

	var treeID plumbing.Hash
	if len(opts.Pathspecs) > 0 {
		treeID, err = pathspecFilteredTree(ctx, repoPath, info.Tree, parentInfo.Tree, opts.Pathspecs)
		if err != nil {
			return err
		}
	} else {
		treeID = parentInfo.Tree
	}

	committer := currentCommitter(ctx, repoPath)
	if opts.CommitterDateIsAuthorDate {
		committer.When = info.Author.When
	}

	newCommit, err := commitTreeAs(ctx, repoPath, treeID, info.Parents, info.Author, committer, info.Message)
	if err != nil {
		return err
	}

	tx.UpdatePatch(patchName, newCommit)

	reflogMessage := fmt.Sprintf("spill %s", patchName)
	if opts.Annotate != "" {
		reflogMessage = fmt.Sprintf("%s\n\n%s", reflogMessage, opts.Annotate)
	}
	if err := tx.Execute(reflogMessage); err != nil {
		return err
	}

	if opts.Reset {
		readTree := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "read-tree", string(treeID))
		if err := readTree.Run(); err != nil {
			return fmt.Errorf("%w: resetting index after spill: %v", ErrRepository, err)
		}
	}
	return nil
}

// checkRepositoryState returns ErrDirtyWorkingTree when repoPath is a
// mid-operation git directory (an unresolved merge or rebase), mirroring
// the original's repo.check_repository_state() guard: committing a spilled
// tree on top of MERGE_HEAD/rebase-merge/rebase-apply would silently
// paper over the in-progress operation instead of refusing to run.
func checkRepositoryState(repoPath string) error {
	for _, name := range []string{"MERGE_HEAD", "rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(repoPath, name)); err == nil {
			return fmt.Errorf("%w: a merge or rebase is in progress, resolve it before spilling", ErrDirtyWorkingTree)
		}
	}
	return nil
}

// checkNoConflicts returns ErrDirtyWorkingTree when the index has any
// unmerged (stage>0) entries, mirroring the original's
// statuses.check_conflicts(). A conflicted merge/rebase can leave these
// behind even once MERGE_HEAD itself has been removed by hand.
func checkNoConflicts(ctx context.Context, repoPath string) error {
	cmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "ls-files", "--unmerged")
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("%w: listing unmerged index entries: %v", ErrRepository, err)
	}
	if len(bytes.TrimSpace(out)) > 0 {
		return fmt.Errorf("%w: the index has unresolved merge conflicts", ErrDirtyWorkingTree)
	}
	return nil
}

// checkIndexClean returns ErrDirtyWorkingTree when the index has staged
// changes relative to HEAD; spill is only meaningful against an otherwise
// quiescent index.
func checkIndexClean(ctx context.Context, repoPath string) error {
	cmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "diff", "--cached", "--quiet", "--no-ext-diff")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: index has staged changes", ErrDirtyWorkingTree)
	}
	return nil
}

// pathspecFilteredTree builds a tree equal to patchTree except that the
// paths matching pathspecs take parentTree's content, computed against a
// disposable temporary index (GIT_INDEX_FILE override) so the caller's real
// index is untouched.
func pathspecFilteredTree(ctx context.Context, repoPath string, patchTree, parentTree plumbing.Hash, pathspecs []string) (plumbing.Hash, error) {
	tmp, err := os.CreateTemp("", "stack-spill-index-*")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: allocating temporary index: %v", ErrRepository, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	indexEnv := []string{"GIT_INDEX_FILE=" + tmpPath}

	readTree := command.NewFromOptions(ctx, &command.RunOpts{RepoPath: repoPath, ExtraEnv: indexEnv},
		"git", "--git-dir", repoPath, "read-tree", string(patchTree))
	if err := readTree.Run(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: reading patch tree into temporary index: %v", ErrRepository, err)
	}

	diffArgs := []string{"--git-dir", repoPath, "diff", "--binary", string(patchTree), string(parentTree), "--"}
	diffArgs = append(diffArgs, pathspecs...)
	diff := command.New(ctx, repoPath, "git", diffArgs...)
	patchBytes, err := diff.Output()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: diffing patch tree against parent: %v", ErrRepository, err)
	}

	if len(bytes.TrimSpace(patchBytes)) > 0 {
		apply := command.NewFromOptions(ctx, &command.RunOpts{RepoPath: repoPath, ExtraEnv: indexEnv, Stdin: bytes.NewReader(patchBytes)},
			"git", "--git-dir", repoPath, "apply", "--cached", "--binary")
		if err := apply.Run(); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("%w: applying path-limited diff to temporary index: %v", ErrRepository, err)
		}
	}

	writeTree := command.NewFromOptions(ctx, &command.RunOpts{RepoPath: repoPath, ExtraEnv: indexEnv},
		"git", "--git-dir", repoPath, "write-tree")
	treeID, err := writeTree.OneLine()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: writing filtered tree: %v", ErrRepository, err)
	}
	return plumbing.NewHash(treeID), nil
}

func currentCommitter(ctx context.Context, repoPath string) git.Signature {
	name := gitConfigGet(ctx, repoPath, "user.name")
	email := gitConfigGet(ctx, repoPath, "user.email")
	return git.Signature{Name: name, Email: email, When: now()}
}

func gitConfigGet(ctx context.Context, repoPath, key string) string {
	cmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "config", "--get", key)
	v, err := cmd.OneLine()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func commitTreeAs(ctx context.Context, repoPath string, tree plumbing.Hash, parents []plumbing.Hash, author, committer git.Signature, message string) (plumbing.Hash, error) {
	args := []string{"--git-dir", repoPath, "commit-tree", string(tree)}
	for _, p := range parents {
		args = append(args, "-p", string(p))
	}
	args = append(args, "-m", message)
	cmd := command.NewFromOptions(ctx, &command.RunOpts{RepoPath: repoPath, ExtraEnv: signatureEnv(author, committer)},
		"git", args...)
	id, err := cmd.OneLine()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: creating rewritten patch commit: %v", ErrRepository, err)
	}
	return plumbing.NewHash(id), nil
}

func signatureEnv(author, committer git.Signature) []string {
	return []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + signatureDate(author),
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
		"GIT_COMMITTER_DATE=" + signatureDate(committer),
	}
}

func signatureDate(s git.Signature) string {
	return fmt.Sprintf("%d %s", s.When.Unix(), s.When.Format("-0700"))
}
