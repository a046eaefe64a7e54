package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetpipe/cmd/assetpipe/commands"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/version"
)

func main() {
	cli := &commands.CLI{}
	vars := commands.Vars()
	vars["version"] = version.String()
	parser := kong.Parse(cli,
		kong.Name("assetpipe"),
		kong.Description("Build, watch and live-reload the front-end assets of a website theme."),
		kong.UsageOnError(),
		vars,
	)
	err := parser.Run(&commands.Global{Out: os.Stdout}, cli)
	ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
