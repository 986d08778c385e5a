// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"github.com/alecthomas/kong"

	"github.com/nonlogicaldev/stgit-go/pkg/command"
	"github.com/nonlogicaldev/stgit-go/pkg/tr"
	"github.com/nonlogicaldev/stgit-go/pkg/version"
)

type App struct {
	command.Globals
	Repair  command.Repair  `cmd:"repair" help:"Synchronize the recorded stack state with the branch's history"`
	Spill   command.Spill   `cmd:"spill" help:"Spill changes from the topmost patch"`
	Version command.Version `cmd:"version" help:"Show version information"`
}

func main() {
	_ = tr.Initialize()

	var app App
	ctx := kong.Parse(&app,
		kong.Name("stg"),
		kong.Description(tr.W("stg - a patch stack manager for git")),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": version.GetVersionString(),
		},
	)
	err := ctx.Run(&app.Globals)
	ctx.FatalIfErrorf(err)
}
