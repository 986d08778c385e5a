package stack

import (
	"context"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/nonlogicaldev/stgit-go/modules/patch"
	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
	"github.com/nonlogicaldev/stgit-go/pkg/progress"
)

// RepairOptions parameterise a repair run.
type RepairOptions struct {
	Reset bool
	// Protected is the config-layer is_protected result for the branch
	// being repaired, read once at the start of the operation.
	Protected bool
	// PatchNameLengthLimit is the Patch Name Generator's length limit,
	// read once from configuration.
	PatchNameLengthLimit int
	// Quiet suppresses the scan progress bar.
	Quiet bool
}

// Repair runs the repair orchestrator (auto or reset mode, per RepairOptions.Reset)
// against branch, writing informational messages to out.
func Repair(ctx context.Context, repoPath, branch string, opts RepairOptions, out func(format string, args ...any)) error {
	if opts.Reset {
		return repairReset(ctx, repoPath, branch, opts, out)
	}
	return repairAuto(ctx, repoPath, branch, opts, out)
}

func repairReset(ctx context.Context, repoPath, branch string, opts RepairOptions, out func(string, ...any)) error {
	tx, err := SetupTransaction(ctx, repoPath, branch, opts.Protected, Options{})
	if err != nil {
		return err
	}
	snap := tx.Stack()

	if snap.BranchHead() == snap.Head() {
		out("already matching")
		return nil
	}

	newApplied := []patch.Name{}
	newUnapplied := append(append([]patch.Name{}, snap.Applied()...), snap.Unapplied()...)
	newHidden := append([]patch.Name{}, snap.Hidden()...)
	commits := map[patch.Name]plumbing.Hash{}
	for _, n := range snap.AllPatches() {
		commits[n] = snap.CommitOf(n)
	}
	newState := patch.NewSnapshot(newApplied, newUnapplied, newHidden, commits, snap.Base(), snap.Base(), snap.BranchHead())

	tx.ResetToState(newState)
	if err := tx.Execute("repair-rewind"); err != nil {
		return err
	}
	return nil
}

// walkResult is the output of the linear first-parent walk described in
// §4.5.1.
type walkResult struct {
	appliedFound        []patch.Name
	definitelyPatchify   []plumbing.Hash
	mergeHiddenCount     int
	mergeCommit          plumbing.Hash
}

func walkForRepair(accessor *Accessor, snap *patch.Snapshot, bar *progress.Bar) (*walkResult, error) {
	var appliedFoundRev []patch.Name    // top-down order, reversed at the end
	var definitelyPatchifyRev []plumbing.Hash
	var maybePatchify []plumbing.Hash

	base := snap.Base()
	cur := snap.BranchHead()

	hitBase := false
	var stoppedAtMerge plumbing.Hash

	for {
		if cur == plumbing.ZeroHash {
			break
		}
		parentCount, err := accessor.ParentCount(cur)
		if err != nil {
			return nil, err
		}
		if parentCount != 1 {
			if parentCount >= 2 {
				stoppedAtMerge = cur
			}
			break
		}

		if name, ok := snap.NameOf(cur); ok {
			appliedFoundRev = append(appliedFoundRev, name)
			for i := len(maybePatchify) - 1; i >= 0; i-- {
				definitelyPatchifyRev = append(definitelyPatchifyRev, maybePatchify[i])
			}
			maybePatchify = nil
		} else {
			maybePatchify = append(maybePatchify, cur)
		}

		parent, _, err := accessor.FirstParent(cur)
		if err != nil {
			return nil, err
		}
		cur = parent

		if cur == base {
			for i := len(maybePatchify) - 1; i >= 0; i-- {
				definitelyPatchifyRev = append(definitelyPatchifyRev, maybePatchify[i])
			}
			maybePatchify = nil
			hitBase = true
			break
		}
	}

	if hitBase && stoppedAtMerge != plumbing.ZeroHash {
		// Unreachable per §9's Open Question: the walk always stops at the
		// first non-linear commit, so a base-reached stop and a
		// merge-reached stop cannot both be true for the same walk.
		panic("stack: walk reached both a merge and the recorded base in the same pass")
	}

	res := &walkResult{mergeCommit: stoppedAtMerge}

	// appliedFoundRev/definitelyPatchifyRev were built top-down; reverse
	// both so appliedFound is bottom-most first and definitelyPatchify is
	// chronological (oldest first).
	for i := len(appliedFoundRev) - 1; i >= 0; i-- {
		res.appliedFound = append(res.appliedFound, appliedFoundRev[i])
	}
	for i := len(definitelyPatchifyRev) - 1; i >= 0; i-- {
		res.definitelyPatchify = append(res.definitelyPatchify, definitelyPatchifyRev[i])
	}

	if stoppedAtMerge != plumbing.ZeroHash {
		seen := hashset.New()
		if err := accessor.ReachableAncestors(stoppedAtMerge, func(id plumbing.Hash) {
			seen.Add(id)
			if bar != nil {
				bar.Add(1)
			}
		}); err != nil {
			return nil, err
		}
		for _, n := range snap.AllPatches() {
			if seen.Contains(snap.CommitOf(n)) {
				res.mergeHiddenCount++
			}
		}
	}

	return res, nil
}

func repairAuto(ctx context.Context, repoPath, branch string, opts RepairOptions, out func(string, ...any)) error {
	tx, err := SetupTransaction(ctx, repoPath, branch, opts.Protected, Options{})
	if err != nil {
		return err
	}
	snap := tx.Stack()

	accessor, err := NewAccessor(ctx, repoPath)
	if err != nil {
		return err
	}
	defer accessor.Close()

	bar := progress.NewUnknownBar("scanning merge ancestors", opts.Quiet)
	walk, err := walkForRepair(accessor, snap, bar)
	bar.Exit()
	if err != nil {
		return err
	}

	if walk.mergeHiddenCount > 0 {
		out("%d patch(es) hidden below the merge commit %s and will be considered unapplied",
			walk.mergeHiddenCount, walk.mergeCommit.Shorten())
	}

	appliedFoundSet := make(map[patch.Name]bool, len(walk.appliedFound))
	for _, n := range walk.appliedFound {
		appliedFoundSet[n] = true
	}

	newApplied := walk.appliedFound
	var newUnapplied []patch.Name
	for _, n := range snap.Applied() {
		if !appliedFoundSet[n] {
			newUnapplied = append(newUnapplied, n)
			out("%q is now unapplied", n)
		}
	}
	for _, n := range snap.Unapplied() {
		if !appliedFoundSet[n] {
			newUnapplied = append(newUnapplied, n)
		}
	}
	var newHidden []patch.Name
	for _, n := range snap.Hidden() {
		if !appliedFoundSet[n] {
			newHidden = append(newHidden, n)
		}
	}
	oldApplied := make(map[patch.Name]bool, len(snap.Applied()))
	for _, n := range snap.Applied() {
		oldApplied[n] = true
	}
	for _, n := range newApplied {
		if !oldApplied[n] {
			out("%q is now applied", n)
		}
	}

	tx.RepairAppliedness(newApplied, newUnapplied, newHidden)

	for _, id := range walk.definitelyPatchify {
		title, err := accessor.MessageTitle(id)
		if err != nil {
			return err
		}
		candidate := patch.Make(title, id.Shorten(), opts.PatchNameLengthLimit)
		disallow := make(map[patch.Name]bool)
		for _, n := range tx.AllPatches() {
			disallow[n] = true
		}
		name := patch.Uniquify(candidate, nil, disallow)
		if err := tx.NewApplied(name, id); err != nil {
			return err
		}
		out("%q is now applied", name)
	}

	if err := tx.Execute("repair"); err != nil {
		return err
	}
	return nil
}
