// Package patch implements patch names and the ordered registry of patches
// that make up a stack.
package patch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// Name is a patch name: a non-empty, printable token unique within a stack.
type Name string

// ErrInvalidName is returned when a proposed patch name is empty or unusable.
var ErrInvalidName = errors.New("invalid patch name")

// DefaultLengthLimit is used when no configuration overrides it.
const DefaultLengthLimit = 72

// defaultPrefix is the fallback prefix for generate_random_id when the stack
// has no applied patch to borrow a prefix from.
const defaultPrefix = "misc"

// randomIDCharset is the alphabet random ids are drawn from.
const randomIDCharset = "0123456789abcdefghijklmnopqrstuvwxyz"

var titleNormalizer = strings.NewReplacer(
	" ", "-",
	"\t", "-",
	".", "-",
	",", "-",
	":", "-",
	";", "-",
	"'", "",
	"\"", "",
)

// Make extracts a candidate patch name from a commit message title. The
// title is trimmed, punctuation-normalised into hyphens, lowercased, and
// truncated to lengthLimit. An empty title yields a placeholder name derived
// from shortID.
func Make(title string, shortID string, lengthLimit int) Name {
	if lengthLimit <= 0 {
		lengthLimit = DefaultLengthLimit
	}
	title = strings.TrimSpace(norm.NFC.String(title))
	if title == "" {
		return Name(fmt.Sprintf("commit-%s", shortID))
	}
	normalized := titleNormalizer.Replace(strings.ToLower(title))
	normalized = collapseHyphens(normalized)
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return Name(fmt.Sprintf("commit-%s", shortID))
	}
	normalized = truncateByWidth(normalized, lengthLimit)
	return Name(normalized)
}

// truncateByWidth trims s to at most limit terminal display columns,
// cutting on a grapheme-cluster boundary so a title ending in a wide
// (e.g. CJK) rune or a combining mark isn't split mid-character.
func truncateByWidth(s string, limit int) string {
	if uniseg.StringWidth(s) <= limit {
		return s
	}
	gr := uniseg.NewGraphemes(s)
	var b strings.Builder
	width := 0
	for gr.Next() {
		cw := uniseg.StringWidth(gr.Str())
		if width+cw > limit {
			break
		}
		b.WriteString(gr.Str())
		width += cw
	}
	return strings.Trim(b.String(), "-")
}

func collapseHyphens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevHyphen := false
	for _, r := range s {
		if r == '-' {
			if prevHyphen {
				continue
			}
			prevHyphen = true
		} else {
			prevHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Uniquify appends the smallest numeric suffix that makes name not collide
// with anything in disallow, unless it is already present in allow (in
// which case name is returned unchanged: the caller is keeping its own
// name).
func Uniquify(name Name, allow map[Name]bool, disallow map[Name]bool) Name {
	if allow[name] || !disallow[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := Name(fmt.Sprintf("%s-%d", name, i))
		if !disallow[candidate] {
			return candidate
		}
	}
}

// GenerateRandomID forms "<prefix>@<5 random chars>". prefix defaults to
// "misc" when empty.
func GenerateRandomID(prefix string) (Name, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	suffix, err := randomSuffix(5)
	if err != nil {
		return "", err
	}
	return Name(fmt.Sprintf("%s@%s", prefix, suffix)), nil
}

// PrefixFromLastApplied extracts the "<prefix>" portion of a patch name
// containing '@', for use as the default prefix of a subsequent
// GenerateRandomID call. It returns "" if name has no '@'.
func PrefixFromLastApplied(name Name) string {
	s := string(name)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return ""
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating patch id: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randomIDCharset[int(b)%len(randomIDCharset)]
	}
	return string(out), nil
}

// Validate reports whether name is acceptable: non-empty, with no whitespace
// or control characters.
func Validate(name Name) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	for _, r := range string(name) {
		if r <= ' ' || r == 0x7f {
			return fmt.Errorf("%w: %q contains unprintable characters", ErrInvalidName, name)
		}
	}
	return nil
}
