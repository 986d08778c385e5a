package patch

import (
	"fmt"

	"github.com/emirpasic/gods/lists/arraylist"

	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

// orderedNames is a typed wrapper around gods' arraylist.List so that the
// Registry's three sequences don't leak interface{} into call sites.
type orderedNames struct {
	list *arraylist.List
}

func newOrderedNames(names ...Name) orderedNames {
	l := arraylist.New()
	for _, n := range names {
		l.Add(n)
	}
	return orderedNames{list: l}
}

func (o orderedNames) values() []Name {
	raw := o.list.Values()
	out := make([]Name, len(raw))
	for i, v := range raw {
		out[i] = v.(Name)
	}
	return out
}

func (o orderedNames) contains(n Name) bool {
	return o.list.Contains(n)
}

func (o orderedNames) append(n Name) {
	o.list.Add(n)
}

// Snapshot is an immutable projection of a stack's patch registry, as read
// at the start of a transaction.
type Snapshot struct {
	applied   orderedNames
	unapplied orderedNames
	hidden    orderedNames
	commits   map[Name]plumbing.Hash

	base       plumbing.Hash
	head       plumbing.Hash
	branchHead plumbing.Hash
}

// NewSnapshot builds a Snapshot from already-ordered lists plus the
// name->commit mapping and base/head/branch_head fields, as decoded off the
// stack-state commit.
func NewSnapshot(applied, unapplied, hidden []Name, commits map[Name]plumbing.Hash, base, head, branchHead plumbing.Hash) *Snapshot {
	return &Snapshot{
		applied:    newOrderedNames(applied...),
		unapplied:  newOrderedNames(unapplied...),
		hidden:     newOrderedNames(hidden...),
		commits:    commits,
		base:       base,
		head:       head,
		branchHead: branchHead,
	}
}

func (s *Snapshot) Applied() []Name   { return s.applied.values() }
func (s *Snapshot) Unapplied() []Name { return s.unapplied.values() }
func (s *Snapshot) Hidden() []Name    { return s.hidden.values() }

// AllPatches concatenates applied+unapplied+hidden preserving each list's
// order.
func (s *Snapshot) AllPatches() []Name {
	out := make([]Name, 0, len(s.commits))
	out = append(out, s.Applied()...)
	out = append(out, s.Unapplied()...)
	out = append(out, s.Hidden()...)
	return out
}

// CommitOf returns the commit id bound to name, or plumbing.ZeroHash if
// name is unknown.
func (s *Snapshot) CommitOf(name Name) plumbing.Hash {
	return s.commits[name]
}

// NameOf reports the patch name bound to id, if any. Used to detect whether
// a commit on the branch is a known patch versus a plain commit.
func (s *Snapshot) NameOf(id plumbing.Hash) (Name, bool) {
	for name, commit := range s.commits {
		if commit == id {
			return name, true
		}
	}
	return "", false
}

func (s *Snapshot) Base() plumbing.Hash       { return s.base }
func (s *Snapshot) Head() plumbing.Hash       { return s.head }
func (s *Snapshot) BranchHead() plumbing.Hash { return s.branchHead }

// IsProtected reports whether protected contains an entry equal to
// branchName. Only exact names match; entries are not treated as globs.
func (s *Snapshot) IsProtected(branchName string, protected map[string]bool) bool {
	return protected[branchName]
}

// union returns the set of all patch names currently known, for
// disallow-set computations.
func (s *Snapshot) union() map[Name]bool {
	out := make(map[Name]bool, len(s.commits))
	for _, n := range s.AllPatches() {
		out[n] = true
	}
	return out
}

// ValidateFn checks the invariants of §3, using firstParent to walk the
// first-parent chain from branch head down through the applied list.
func (s *Snapshot) ValidateFn(firstParent func(id plumbing.Hash) (plumbing.Hash, bool, error)) error {
	seen := make(map[Name]bool, len(s.commits))
	for _, n := range s.AllPatches() {
		if seen[n] {
			return fmt.Errorf("%w: patch %q appears more than once", errInvariant, n)
		}
		seen[n] = true
		if s.CommitOf(n) == plumbing.ZeroHash {
			return fmt.Errorf("%w: patch %q has no bound commit", errInvariant, n)
		}
	}

	cur := s.branchHead
	applied := s.Applied()
	for i := len(applied) - 1; i >= 0; i-- {
		want := s.CommitOf(applied[i])
		if cur != want {
			return fmt.Errorf("%w: applied patch %q is not reachable from branch head via first-parent links", errInvariant, applied[i])
		}
		parent, ok, err := firstParent(cur)
		if err != nil {
			return err
		}
		if !ok && i != 0 {
			return fmt.Errorf("%w: applied patch %q has no parent but is not bottom of stack", errInvariant, applied[i])
		}
		cur = parent
	}
	if len(applied) > 0 && cur != s.base && s.base != plumbing.ZeroHash {
		// The bottommost applied patch's parent should be base; this is a
		// soft check since base tracking may legitimately diverge when the
		// bottom patch itself was amended (handled by the repair walk, not
		// by this validator).
		_ = cur
	}
	return nil
}

var errInvariant = fmt.Errorf("invariant violation")
