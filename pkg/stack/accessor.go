package stack

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nonlogicaldev/stgit-go/modules/git"
	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

// CommitInfo is the decoded subset of a commit object the repair and spill
// orchestrators need: id, parents, tree, author/committer, and message.
type CommitInfo struct {
	ID        plumbing.Hash
	Parents   []plumbing.Hash
	Tree      plumbing.Hash
	Author    git.Signature
	Committer git.Signature
	Message   string
}

// Title returns the first line of the commit message.
func (c *CommitInfo) Title() string {
	for i, r := range c.Message {
		if r == '\n' || r == '\r' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// Accessor is the Commit Graph Accessor: read-only commit lookups backed by
// a single long-lived `git cat-file --batch-command` pipe. Walks traverse
// parent links only, never references.
type Accessor struct {
	ctx     context.Context
	decoder *git.Decoder
	cache   *ristretto.Cache[string, *CommitInfo]

	mu sync.Mutex
}

// NewAccessor opens a Commit Graph Accessor against the repository at
// repoPath. The caller must Close it when done.
func NewAccessor(ctx context.Context, repoPath string) (*Accessor, error) {
	d, err := git.NewDecoder(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening commit decoder: %v", ErrRepository, err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *CommitInfo]{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: allocating commit cache: %v", ErrRepository, err)
	}
	return &Accessor{ctx: ctx, decoder: d, cache: cache}, nil
}

// Close releases the underlying git process.
func (a *Accessor) Close() error {
	a.cache.Close()
	return a.decoder.Close()
}

// FindCommit looks up a commit by id. Returns ErrRepository wrapping
// git.ErrNotExist-family errors when the object is missing or not a commit.
func (a *Accessor) FindCommit(id plumbing.Hash) (*CommitInfo, error) {
	if v, ok := a.cache.Get(string(id)); ok {
		return v, nil
	}

	a.mu.Lock()
	c, err := a.decoder.Commit(string(id))
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepository, err)
	}

	info := &CommitInfo{
		ID:        plumbing.NewHash(c.Hash),
		Tree:      plumbing.NewHash(c.Tree),
		Author:    c.Author,
		Committer: c.Committer,
		Message:   c.Message,
	}
	for _, p := range c.Parents {
		info.Parents = append(info.Parents, plumbing.NewHash(p))
	}
	a.cache.Set(string(id), info, 1)
	a.cache.Wait()
	return info, nil
}

// Parents returns the parent commit ids of id.
func (a *Accessor) Parents(id plumbing.Hash) ([]plumbing.Hash, error) {
	c, err := a.FindCommit(id)
	if err != nil {
		return nil, err
	}
	return c.Parents, nil
}

// Tree returns the root tree id of id's commit.
func (a *Accessor) Tree(id plumbing.Hash) (plumbing.Hash, error) {
	c, err := a.FindCommit(id)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return c.Tree, nil
}

// MessageTitle returns the first line of id's commit message.
func (a *Accessor) MessageTitle(id plumbing.Hash) (string, error) {
	c, err := a.FindCommit(id)
	if err != nil {
		return "", err
	}
	return c.Title(), nil
}

// FirstParent returns the single first-parent of id, following the
// convention used by the repair walk: ok is false when id is a root commit
// (no parents). A merge's "first parent" is still well-defined and
// returned; callers distinguish linear-vs-merge via ParentCount.
func (a *Accessor) FirstParent(id plumbing.Hash) (plumbing.Hash, bool, error) {
	parents, err := a.Parents(id)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	if len(parents) == 0 {
		return plumbing.ZeroHash, false, nil
	}
	return parents[0], true, nil
}

// ParentCount returns len(Parents(id)).
func (a *Accessor) ParentCount(id plumbing.Hash) (int, error) {
	parents, err := a.Parents(id)
	if err != nil {
		return 0, err
	}
	return len(parents), nil
}

// ReachableAncestors visits every ancestor of start (inclusive) once, in
// depth-first order, following every parent link (not just first-parent).
// It is used by the merge-ancestor reachability scan in the repair walk.
// onVisit, if non-nil, is called once per visited commit.
func (a *Accessor) ReachableAncestors(start plumbing.Hash, onVisit func(plumbing.Hash)) error {
	seen := map[plumbing.Hash]bool{start: true}
	worklist := []plumbing.Hash{start}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if onVisit != nil {
			onVisit(cur)
		}
		parents, err := a.Parents(cur)
		if err != nil {
			return err
		}
		for _, p := range parents {
			if !seen[p] {
				seen[p] = true
				worklist = append(worklist, p)
			}
		}
	}
	return nil
}
