package patch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
)

func hashFor(b byte) plumbing.Hash {
	return plumbing.NewHash(strings.Repeat(fmt.Sprintf("%02x", b), 20))
}

func TestSnapshotAllPatchesPreservesOrder(t *testing.T) {
	commits := map[Name]plumbing.Hash{
		"a": hashFor(1),
		"b": hashFor(2),
		"c": hashFor(3),
		"d": hashFor(4),
	}
	snap := NewSnapshot([]Name{"a", "b"}, []Name{"c"}, []Name{"d"}, commits, plumbing.ZeroHash, plumbing.ZeroHash, plumbing.ZeroHash)

	assert.Equal(t, []Name{"a", "b"}, snap.Applied())
	assert.Equal(t, []Name{"c"}, snap.Unapplied())
	assert.Equal(t, []Name{"d"}, snap.Hidden())
	assert.Equal(t, []Name{"a", "b", "c", "d"}, snap.AllPatches())
}

func TestSnapshotCommitOfAndNameOf(t *testing.T) {
	commits := map[Name]plumbing.Hash{"a": hashFor(1)}
	snap := NewSnapshot([]Name{"a"}, nil, nil, commits, plumbing.ZeroHash, hashFor(1), hashFor(1))

	assert.Equal(t, hashFor(1), snap.CommitOf("a"))
	assert.Equal(t, plumbing.ZeroHash, snap.CommitOf("missing"))

	name, ok := snap.NameOf(hashFor(1))
	require.True(t, ok)
	assert.Equal(t, Name("a"), name)

	_, ok = snap.NameOf(hashFor(9))
	assert.False(t, ok)
}

func TestSnapshotBaseHeadBranchHead(t *testing.T) {
	snap := NewSnapshot(nil, nil, nil, map[Name]plumbing.Hash{}, hashFor(1), hashFor(2), hashFor(3))
	assert.Equal(t, hashFor(1), snap.Base())
	assert.Equal(t, hashFor(2), snap.Head())
	assert.Equal(t, hashFor(3), snap.BranchHead())
}

func TestSnapshotValidateFnRejectsDuplicateName(t *testing.T) {
	commits := map[Name]plumbing.Hash{"a": hashFor(1)}
	snap := &Snapshot{
		applied: newOrderedNames("a", "a"),
		commits: commits,
	}
	err := snap.ValidateFn(func(id plumbing.Hash) (plumbing.Hash, bool, error) {
		return plumbing.ZeroHash, false, nil
	})
	assert.Error(t, err)
}

func TestSnapshotValidateFnRejectsUnboundPatch(t *testing.T) {
	snap := &Snapshot{
		applied: newOrderedNames("a"),
		commits: map[Name]plumbing.Hash{"a": plumbing.ZeroHash},
	}
	err := snap.ValidateFn(func(id plumbing.Hash) (plumbing.Hash, bool, error) {
		return plumbing.ZeroHash, false, nil
	})
	assert.Error(t, err)
}

func TestSnapshotValidateFnWalksFirstParentChain(t *testing.T) {
	commits := map[Name]plumbing.Hash{"a": hashFor(1), "b": hashFor(2)}
	snap := &Snapshot{
		applied:    newOrderedNames("a", "b"),
		commits:    commits,
		base:       hashFor(9),
		branchHead: hashFor(2),
	}
	parents := map[plumbing.Hash]plumbing.Hash{
		hashFor(2): hashFor(1),
		hashFor(1): hashFor(9),
	}
	err := snap.ValidateFn(func(id plumbing.Hash) (plumbing.Hash, bool, error) {
		p, ok := parents[id]
		return p, ok, nil
	})
	assert.NoError(t, err)
}
