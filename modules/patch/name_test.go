package patch

import (
	"strings"
	"testing"

	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
)

func TestMakeSlugifiesTitle(t *testing.T) {
	name := Make("Fix the Frobnicator: handle nil pointers", "abc1234", 0)
	assert.Equal(t, Name("fix-the-frobnicator-handle-nil-pointers"), name)
}

func TestMakeEmptyTitleFallsBackToCommitID(t *testing.T) {
	name := Make("   ", "abc1234", 0)
	assert.Equal(t, Name("commit-abc1234"), name)
}

func TestMakePunctuationOnlyTitleFallsBack(t *testing.T) {
	name := Make("...,,,", "abc1234", 0)
	assert.Equal(t, Name("commit-abc1234"), name)
}

func TestMakeRespectsLengthLimit(t *testing.T) {
	title := "a very long commit title that should be truncated at some point soon"
	name := Make(title, "abc1234", 20)
	assert.LessOrEqual(t, len(string(name)), 20)
	assert.False(t, strings.HasSuffix(string(name), "-"))
}

func TestMakeTruncatesOnGraphemeBoundary(t *testing.T) {
	// Each CJK character is width 2; a limit of 5 must not split one in half.
	name := Make("修复一个严重的错误", "abc1234", 5)
	assert.LessOrEqual(t, uniseg.StringWidth(string(name)), 5)
}

func TestUniquifyReturnsUnchangedWhenAllowed(t *testing.T) {
	allow := map[Name]bool{"foo": true}
	disallow := map[Name]bool{"foo": true}
	assert.Equal(t, Name("foo"), Uniquify("foo", allow, disallow))
}

func TestUniquifyReturnsUnchangedWhenNotDisallowed(t *testing.T) {
	assert.Equal(t, Name("foo"), Uniquify("foo", nil, map[Name]bool{}))
}

func TestUniquifyAppendsSmallestSuffix(t *testing.T) {
	disallow := map[Name]bool{"foo": true, "foo-2": true}
	assert.Equal(t, Name("foo-3"), Uniquify("foo", nil, disallow))
}

func TestGenerateRandomIDUsesDefaultPrefix(t *testing.T) {
	name, err := GenerateRandomID("")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(name), "misc@"))
	assert.Len(t, string(name), len("misc@")+5)
}

func TestGenerateRandomIDUsesGivenPrefix(t *testing.T) {
	name, err := GenerateRandomID("topic")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(name), "topic@"))
}

func TestPrefixFromLastApplied(t *testing.T) {
	assert.Equal(t, "topic", PrefixFromLastApplied("topic@ab123"))
	assert.Equal(t, "", PrefixFromLastApplied("no-at-sign"))
}

func TestValidateRejectsEmptyAndControlCharacters(t *testing.T) {
	assert.Error(t, Validate(""))
	assert.Error(t, Validate("has space"))
	assert.NoError(t, Validate("valid-name"))
}
