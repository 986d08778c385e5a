// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	modcommand "github.com/nonlogicaldev/stgit-go/modules/command"
	"github.com/nonlogicaldev/stgit-go/modules/git"
	"github.com/nonlogicaldev/stgit-go/pkg/stack"
	"github.com/nonlogicaldev/stgit-go/pkg/stackcfg"
)

type Spill struct {
	Annotate                  string   `short:"a" name:"annotate" help:"Annotate the patch log entry with a note"`
	Reset                     bool     `short:"r" name:"reset" help:"Also reset the index, leaving the patch's changes only in the worktree"`
	CommitterDateIsAuthorDate bool     `name:"committer-date-is-author-date" help:"Use the patch's author date as its new committer date"`
	Yes                       bool     `short:"y" name:"yes" help:"Skip the diffstat confirmation prompt"`
	Pathspecs                 []string `arg:"" optional:"" name:"path" help:"Only spill files matching path"`
}

func (c *Spill) Run(g *Globals) error {
	ctx := context.Background()
	repoPath := git.RevParseRepoPath(ctx, g.CWD)
	g.DbgPrint("repository location: %v", repoPath)

	refname, err := git.RevParseCurrentName(ctx, os.Environ(), repoPath)
	if err != nil {
		diev("resolving current branch: %v", err)
		return err
	}
	branch := git.ReferenceName(refname).BranchName()
	g.DbgPrint("spilling branch: %v pathspecs: %v", branch, c.Pathspecs)

	cfg := stackcfg.Load(ctx, repoPath)

	if !c.Yes {
		ok, err := confirmSpill(ctx, repoPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stdout, W("aborted"))
			return nil
		}
	}

	opts := stack.SpillOptions{
		Protected:                 cfg.IsProtected(branch),
		CommitterDateIsAuthorDate: cfg.CommitterDateIsAuthorDate || c.CommitterDateIsAuthorDate,
		Pathspecs:                 c.Pathspecs,
		Annotate:                  c.Annotate,
		Reset:                     c.Reset,
	}

	g.DbgPrint("rewriting topmost patch tree, committer-date-is-author-date: %v reset: %v", opts.CommitterDateIsAuthorDate, opts.Reset)
	if err := stack.Spill(ctx, repoPath, branch, opts); err != nil {
		diev("spill: %v", err)
		return err
	}
	return nil
}

// confirmSpill shows a diffstat of the topmost patch against its parent and
// asks for confirmation, mirroring the diffstat review a refresh-style
// command gives before rewriting a patch. Non-interactive stdout (piped,
// redirected) skips the prompt and proceeds.
func confirmSpill(ctx context.Context, repoPath string) (bool, error) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return true, nil
	}
	diffstat := modcommand.New(ctx, repoPath, "git", "--git-dir", repoPath, "diff", "--stat", "HEAD^", "HEAD")
	out, err := diffstat.Output()
	if err == nil && len(strings.TrimSpace(string(out))) > 0 {
		os.Stdout.Write(out)
	}
	prompt := W("Spill the topmost patch? [y/N] ")
	if isatty.IsTerminal(os.Stderr.Fd()) {
		prompt = ansi.Color(prompt, "yellow")
	}
	fmt.Fprint(os.Stdout, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes", nil
}
