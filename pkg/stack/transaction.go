package stack

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nonlogicaldev/stgit-go/modules/git"
	"github.com/nonlogicaldev/stgit-go/modules/patch"
	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

// mutationKind distinguishes the four shapes of pending mutation a
// Transaction can accumulate.
type mutationKind int

const (
	mutationNewApplied mutationKind = iota
	mutationUpdatePatch
	mutationRepairAppliedness
	mutationResetToState
)

type mutation struct {
	kind mutationKind

	name   patch.Name
	commit plumbing.Hash

	newApplied, newUnapplied, newHidden []patch.Name

	resetState *patch.Snapshot
}

// Options parameterise a Transaction.
type Options struct {
	// UseIndexAndWorktree, when true, makes Execute fail with ErrRepository:
	// synchronising the index and working tree is not implemented. Repair
	// and spill both leave this false.
	UseIndexAndWorktree bool
	// Output receives informational messages accumulated during the
	// transaction, flushed on a successful execute.
	Output io.Writer
}

// Transaction accumulates proposed mutations against a snapshot of the
// registry and, on Execute, atomically writes a new stack-state commit and
// advances the stack + branch references as a unit, or leaves everything
// untouched on any failure.
type Transaction struct {
	ctx      context.Context
	repoPath string
	branch   string
	protected bool

	base      *patch.Snapshot
	prevStack plumbing.Hash

	opts Options

	mutations []mutation
	messages  []string

	// addedNames tracks names introduced by new_applied within this
	// transaction, which must be visible to AllPatches()/Uniquify even
	// before Execute folds them into the scratch snapshot.
	addedNames map[patch.Name]plumbing.Hash
}

// SetupTransaction opens a Transaction against the current stack state of
// branch. protected is the outcome of the config-layer is_protected check;
// Execute immediately fails with ErrProtectedStack when true, before any
// pending mutation is even inspected.
//
// The persisted stack-state blob's branch_head field is only a bookkeeping
// record of what the branch pointed to as of the last successful
// transaction; it is not live. Per §3's "branch_head — the current tip of
// the branch as the repository records it — may diverge from head", the
// snapshot handed to orchestrators must carry the branch ref's live value,
// re-read here, or repair could never observe the drift it exists to find.
func SetupTransaction(ctx context.Context, repoPath, branch string, protected bool, opts Options) (*Transaction, error) {
	snap, prevStack, err := LoadSnapshot(ctx, repoPath, branch)
	if err != nil {
		return nil, err
	}

	liveBranchHead, err := git.ReferenceTarget(ctx, repoPath, string(git.NewBranchReferenceName(branch)))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving branch %q: %v", ErrRepository, branch, err)
	}
	commits := map[patch.Name]plumbing.Hash{}
	for _, n := range snap.AllPatches() {
		commits[n] = snap.CommitOf(n)
	}
	snap = patch.NewSnapshot(snap.Applied(), snap.Unapplied(), snap.Hidden(), commits,
		snap.Base(), snap.Head(), plumbing.NewHash(liveBranchHead))

	return &Transaction{
		ctx:        ctx,
		repoPath:   repoPath,
		branch:     branch,
		protected:  protected,
		base:       snap,
		prevStack:  prevStack,
		opts:       opts,
		addedNames: map[patch.Name]plumbing.Hash{},
	}, nil
}

// Stack gives read-only access to the borrowed registry snapshot.
func (t *Transaction) Stack() *patch.Snapshot { return t.base }

// AllPatches is the union across the snapshot plus names added by
// NewApplied earlier in this transaction.
func (t *Transaction) AllPatches() []patch.Name {
	out := t.base.AllPatches()
	for n := range t.addedNames {
		out = append(out, n)
	}
	return out
}

func (t *Transaction) disallowSet() map[patch.Name]bool {
	out := make(map[patch.Name]bool, len(t.base.AllPatches())+len(t.addedNames))
	for _, n := range t.AllPatches() {
		out[n] = true
	}
	return out
}

// Logf accumulates one informational message to be emitted on Output after
// a successful Execute.
func (t *Transaction) Logf(format string, args ...any) {
	t.messages = append(t.messages, fmt.Sprintf(format, args...))
}

// NewApplied appends a new patch to the transaction's applied list. name
// must not collide with any existing name, including ones added earlier in
// this same transaction.
func (t *Transaction) NewApplied(name patch.Name, commit plumbing.Hash) error {
	if err := patch.Validate(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatchName, err)
	}
	if t.disallowSet()[name] {
		return fmt.Errorf("%w: patch %q already exists", ErrInvalidPatchName, name)
	}
	t.addedNames[name] = commit
	t.mutations = append(t.mutations, mutation{kind: mutationNewApplied, name: name, commit: commit})
	return nil
}

// UpdatePatch replaces the commit bound to an existing patch name without
// moving it between lists.
func (t *Transaction) UpdatePatch(name patch.Name, commit plumbing.Hash) {
	t.mutations = append(t.mutations, mutation{kind: mutationUpdatePatch, name: name, commit: commit})
}

// RepairAppliedness wholesale-reorders the three lists. The union of the
// three must equal the original union; no new names may be introduced here.
func (t *Transaction) RepairAppliedness(newApplied, newUnapplied, newHidden []patch.Name) {
	t.mutations = append(t.mutations, mutation{
		kind:         mutationRepairAppliedness,
		newApplied:   newApplied,
		newUnapplied: newUnapplied,
		newHidden:    newHidden,
	})
}

// ResetToState replaces the entire registry plus recorded branch head with
// newState.
func (t *Transaction) ResetToState(newState *patch.Snapshot) {
	t.mutations = append(t.mutations, mutation{kind: mutationResetToState, resetState: newState})
}

// apply folds all pending mutations onto a fresh copy of the base snapshot,
// producing the scratch snapshot that Execute will validate and persist.
//
// Every mutation kind except ResetToState either re-labels commits already
// on the branch (repair's auto mode) or rewrites the branch's actual tip
// commit (spill): in both cases the branch is meant to end up pointing at
// the new head, so the result's branch_head is set to match it. Reset is
// the one case that deliberately leaves branch_head at its live,
// pre-transaction value — the gap between it and the freshly-rewound head
// is exactly the drift a later repair/patchify reconciles.
func (t *Transaction) apply() (*patch.Snapshot, error) {
	applied := append([]patch.Name{}, t.base.Applied()...)
	unapplied := append([]patch.Name{}, t.base.Unapplied()...)
	hidden := append([]patch.Name{}, t.base.Hidden()...)
	commits := map[patch.Name]plumbing.Hash{}
	for _, n := range t.base.AllPatches() {
		commits[n] = t.base.CommitOf(n)
	}
	base, head, branchHead := t.base.Base(), t.base.Head(), t.base.BranchHead()

	for _, m := range t.mutations {
		switch m.kind {
		case mutationNewApplied:
			applied = append(applied, m.name)
			commits[m.name] = m.commit
		case mutationUpdatePatch:
			commits[m.name] = m.commit
		case mutationRepairAppliedness:
			if !sameMembership(append(append(append([]patch.Name{}, applied...), unapplied...), hidden...),
				append(append(append([]patch.Name{}, m.newApplied...), m.newUnapplied...), m.newHidden...)) {
				return nil, fmt.Errorf("%w: repair_appliedness must preserve the union of all patch names", ErrInvariantViolation)
			}
			applied, unapplied, hidden = m.newApplied, m.newUnapplied, m.newHidden
		case mutationResetToState:
			return m.resetState, nil
		}
	}

	// head tracks the topmost applied patch's commit, or base when applied
	// is empty — recomputed here rather than trusted from mutations.
	if len(applied) > 0 {
		head = commits[applied[len(applied)-1]]
	} else {
		head = base
	}
	branchHead = head

	return patch.NewSnapshot(applied, unapplied, hidden, commits, base, head, branchHead), nil
}

func sameMembership(a, b []patch.Name) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[patch.Name]int, len(a))
	for _, n := range a {
		set[n]++
	}
	for _, n := range b {
		set[n]--
	}
	for _, c := range set {
		if c != 0 {
			return false
		}
	}
	return true
}

// Execute validates the accumulated mutations against the invariants of §3,
// and on success writes a new stack-state commit and advances the stack and
// branch references atomically via a single reference-transaction.
// reflogMessage becomes the message of the new stack-state commit; the
// reference updates themselves carry no reflog message. Any error leaves all
// references, the registry, and the working tree unchanged.
func (t *Transaction) Execute(reflogMessage string) error {
	if t.protected {
		return ErrProtectedStack
	}

	next, err := t.apply()
	if err != nil {
		return err
	}

	accessor, err := NewAccessor(t.ctx, t.repoPath)
	if err != nil {
		return err
	}
	defer accessor.Close()

	if err := next.ValidateFn(accessor.FirstParent); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	if t.opts.UseIndexAndWorktree {
		// No command introduced by this specification sets this option;
		// synchronising the working tree is explicitly out of scope here.
		return fmt.Errorf("%w: working tree synchronisation is not implemented", ErrRepository)
	}

	newStackCommit, err := WriteStackStateCommit(t.ctx, t.repoPath, next, t.prevStack, reflogMessage)
	if err != nil {
		return err
	}

	updater, err := git.NewRefUpdater(t.ctx, t.repoPath, os.Environ(), false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRepository, err)
	}
	defer updater.Close()

	if err := updater.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrRepository, err)
	}

	stackRef := git.ReferenceName(StackRefName(t.branch))
	if err := updater.Update(stackRef, string(newStackCommit), string(t.prevStack)); err != nil {
		return fmt.Errorf("%w: %v", ErrRepository, err)
	}
	if next.BranchHead() != t.base.BranchHead() {
		branchRef := git.NewBranchReferenceName(t.branch)
		if err := updater.Update(branchRef, string(next.BranchHead()), string(t.base.BranchHead())); err != nil {
			return fmt.Errorf("%w: %v", ErrRepository, err)
		}
	}
	if err := updater.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrRepository, err)
	}

	if t.opts.Output != nil {
		for _, m := range t.messages {
			fmt.Fprintln(t.opts.Output, m)
		}
	}
	return nil
}
