// Package stackcfg reads the handful of git-config keys that parameterise
// repair and spill, the same way modules/git.IsBareRepository reads
// core.bare: one `git config` shell-out per key (`--get`, or `--get-all` for
// stack.protect), defaulted when unset.
package stackcfg

import (
	"context"
	"strconv"
	"strings"

	"github.com/nonlogicaldev/stgit-go/modules/command"
)

// Config is a point-in-time snapshot of the configuration knobs the repair
// and spill orchestrators consult. Callers read it once per invocation;
// there is no live-reload.
type Config struct {
	// PatchNameLengthLimit bounds generated patch names (stack.patchnamelength).
	PatchNameLengthLimit int
	// CommitterDateIsAuthorDate is spill's default for --committer-date-is-author-date
	// (stack.committerdateisauthordate).
	CommitterDateIsAuthorDate bool
	// ProtectedBranches lists branch names repair/spill must refuse to
	// mutate (stack.protect, comma or newline separated).
	ProtectedBranches map[string]bool
}

const defaultPatchNameLengthLimit = 72

// Load reads the configuration for repoPath.
func Load(ctx context.Context, repoPath string) Config {
	cfg := Config{
		PatchNameLengthLimit: defaultPatchNameLengthLimit,
		ProtectedBranches:    map[string]bool{},
	}
	if v := get(ctx, repoPath, "stack.patchnamelength"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PatchNameLengthLimit = n
		}
	}
	if v := get(ctx, repoPath, "stack.committerdateisauthordate"); v != "" {
		cfg.CommitterDateIsAuthorDate = strings.EqualFold(v, "true") || v == "1"
	}
	for _, name := range getAll(ctx, repoPath, "stack.protect") {
		for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == ',' || r == '\n' }) {
			part = strings.TrimSpace(part)
			if part != "" {
				cfg.ProtectedBranches[part] = true
			}
		}
	}
	return cfg
}

// IsProtected reports whether branch must be treated as protected.
func (c Config) IsProtected(branch string) bool {
	return c.ProtectedBranches[branch]
}

func get(ctx context.Context, repoPath, key string) string {
	cmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "config", "--get", key)
	v, err := cmd.OneLine()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func getAll(ctx context.Context, repoPath, key string) []string {
	cmd := command.New(ctx, repoPath, "git", "--git-dir", repoPath, "config", "--get-all", key)
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
