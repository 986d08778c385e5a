package stack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nonlogicaldev/stgit-go/modules/command"
	"github.com/nonlogicaldev/stgit-go/modules/patch"
	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

// stateFileName is the name of the blob inside the stack-state commit's
// tree that carries the serialized registry.
const stateFileName = "stack.json"

// stateVersion is bumped whenever the on-disk shape of wireState changes in
// a way older readers can't tolerate.
const stateVersion = 1

// wireState is the JSON document stored at stateFileName. Field order and
// map-key order are both made deterministic (sorted) by marshal so that two
// transactions writing the same logical state produce byte-identical
// blobs/trees.
type wireState struct {
	Version    int               `json:"version"`
	Base       string            `json:"base"`
	Head       string            `json:"head"`
	BranchHead string            `json:"branch_head"`
	Applied    []string          `json:"applied"`
	Unapplied  []string          `json:"unapplied"`
	Hidden     []string          `json:"hidden"`
	Patches    map[string]string `json:"patches"`
}

func marshalState(s *patch.Snapshot) ([]byte, error) {
	w := wireState{
		Version:    stateVersion,
		Base:       string(s.Base()),
		Head:       string(s.Head()),
		BranchHead: string(s.BranchHead()),
		Patches:    map[string]string{},
	}
	for _, n := range s.Applied() {
		w.Applied = append(w.Applied, string(n))
	}
	for _, n := range s.Unapplied() {
		w.Unapplied = append(w.Unapplied, string(n))
	}
	for _, n := range s.Hidden() {
		w.Hidden = append(w.Hidden, string(n))
	}
	for _, n := range s.AllPatches() {
		w.Patches[string(n)] = string(s.CommitOf(n))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	// encoding/json already emits map[string]V keys in sorted order, so two
	// snapshots with the same logical patches map produce the same bytes;
	// Applied/Unapplied/Hidden are plain slices and keep stack order as-is.
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("%w: encoding stack state: %v", ErrRepository, err)
	}
	return buf.Bytes(), nil
}

func unmarshalState(data []byte) (*patch.Snapshot, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: decoding stack state: %v", ErrRepository, err)
	}
	toNames := func(ss []string) []patch.Name {
		out := make([]patch.Name, len(ss))
		for i, s := range ss {
			out[i] = patch.Name(s)
		}
		return out
	}
	commits := make(map[patch.Name]plumbing.Hash, len(w.Patches))
	for name, id := range w.Patches {
		commits[patch.Name(name)] = plumbing.NewHash(id)
	}
	return patch.NewSnapshot(
		toNames(w.Applied), toNames(w.Unapplied), toNames(w.Hidden),
		commits,
		plumbing.NewHash(w.Base), plumbing.NewHash(w.Head), plumbing.NewHash(w.BranchHead),
	), nil
}

// StackRefName returns the reference under which a branch's stack state is
// recorded: refs/stacks/<branch>.
func StackRefName(branch string) string {
	return "refs/stacks/" + branch
}

// LoadSnapshot reads the current stack-state commit for branch and decodes
// it. Returns ErrNotInitialized if the stack ref doesn't exist yet.
func LoadSnapshot(ctx context.Context, repoPath, branch string) (*patch.Snapshot, plumbing.Hash, error) {
	ref := StackRefName(branch)
	cmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	stackCommit, err := cmd.OneLine()
	if err != nil || stackCommit == "" {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrNotInitialized, branch)
	}

	treeCmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "rev-parse", "--verify", "--quiet", stackCommit+":"+stateFileName)
	blobID, err := treeCmd.OneLine()
	if err != nil || blobID == "" {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: stack commit %s has no %s", ErrRepository, stackCommit, stateFileName)
	}

	catCmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "cat-file", "blob", blobID)
	data, err := catCmd.Output()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: reading stack state blob: %v", ErrRepository, err)
	}
	snap, err := unmarshalState(data)
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	return snap, plumbing.NewHash(stackCommit), nil
}

// WriteStackStateCommit writes a new commit whose tree contains the
// serialized snapshot, parented on prevStackCommit (or no parent when
// prevStackCommit is zero), and returns its id. It does not move any ref.
func WriteStackStateCommit(ctx context.Context, repoPath string, snap *patch.Snapshot, prevStackCommit plumbing.Hash, reflogMessage string) (plumbing.Hash, error) {
	data, err := marshalState(snap)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	hashObj := command.NewFromOptions(ctx, &command.RunOpts{RepoPath: repoPath, Stdin: bytes.NewReader(data)},
		"git", "--git-dir", repoPath, "hash-object", "-w", "--stdin")
	blobID, err := hashObj.OneLine()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: writing stack state blob: %v", ErrRepository, err)
	}

	mktreeInput := fmt.Sprintf("100644 blob %s\t%s\n", blobID, stateFileName)
	mktree := command.NewFromOptions(ctx, &command.RunOpts{RepoPath: repoPath, Stdin: strings.NewReader(mktreeInput)},
		"git", "--git-dir", repoPath, "mktree")
	treeID, err := mktree.OneLine()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: building stack state tree: %v", ErrRepository, err)
	}

	args := []string{"--git-dir", repoPath, "commit-tree", treeID, "-m", reflogMessage}
	if !prevStackCommit.IsZero() {
		args = append(args, "-p", string(prevStackCommit))
	}
	commitTree := command.New(ctx, repoPath, "git", args...)
	commitID, err := commitTree.OneLine()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: creating stack state commit: %v", ErrRepository, err)
	}
	return plumbing.NewHash(commitID), nil
}

// now is overridable in tests; avoids a direct time.Now() call sprinkled
// through the transaction/orchestrator code.
var now = time.Now
