// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"

	"github.com/nonlogicaldev/stgit-go/modules/git"
	"github.com/nonlogicaldev/stgit-go/pkg/stack"
	"github.com/nonlogicaldev/stgit-go/pkg/stackcfg"
)

type Repair struct {
	Branch string `short:"b" name:"branch" help:"Repair the named branch instead of the current branch"`
	Reset  bool   `short:"r" name:"reset" help:"Move all applied patches to unapplied and record the current branch head"`
}

func (c *Repair) Run(g *Globals) error {
	ctx := context.Background()
	repoPath := git.RevParseRepoPath(ctx, g.CWD)
	g.DbgPrint("repository location: %v", repoPath)

	branch := c.Branch
	if branch == "" {
		refname, err := git.RevParseCurrentName(ctx, os.Environ(), repoPath)
		if err != nil {
			diev("resolving current branch: %v", err)
			return err
		}
		branch = git.ReferenceName(refname).BranchName()
	}
	g.DbgPrint("repairing branch: %v (reset: %v)", branch, c.Reset)

	cfg := stackcfg.Load(ctx, repoPath)
	opts := stack.RepairOptions{
		Reset:                c.Reset,
		Protected:            cfg.IsProtected(branch),
		PatchNameLengthLimit: cfg.PatchNameLengthLimit,
	}

	err := stack.Repair(ctx, repoPath, branch, opts, func(format string, args ...any) {
		g.DbgPrint(format, args...)
		fmt.Fprintf(os.Stdout, format+"\n", args...)
	})
	if err != nil {
		diev("repair: %v", err)
		return err
	}
	return nil
}
