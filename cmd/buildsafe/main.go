package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildsafe/cmd/buildsafe/commands"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("buildsafe"),
		kong.Description("Runs long documentation builds detached from the terminal, watches them to completion, and cleans up orphaned build processes."),
		kong.UsageOnError(),
		kong.Vars{"version": versionString()},
	)

	err := ctx.Run(&commands.Global{}, &cli)
	if err != nil {
		adapter := bserrors.NewCLIErrorAdapter(cli.Verbose, nil)
		adapter.HandleError(err)
	}
	os.Exit(0)
}

// versionString assembles the --version output from the ldflags variables.
func versionString() string {
	v := version.Version
	if version.GitCommit != "unknown" {
		v = fmt.Sprintf("%s (%s)", v, version.GitCommit)
	}
	return v
}
