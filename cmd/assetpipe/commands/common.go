package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// Global carries state shared by all commands.
type Global struct {
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Project configuration file; its directory is the project root" default:"${config_file}" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log format (text, json, pretty)" enum:"text,json,pretty" default:"text"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Dev   DevCmd   `cmd:"" default:"1" help:"Build everything, start the dev server and rebuild on changes"`
	Run   RunCmd   `cmd:"" help:"Run individual tasks once"`
	Tasks TasksCmd `cmd:"" help:"List the available tasks"`
	Init  InitCmd  `cmd:"" help:"Write an example configuration file"`
}

// Vars returns the interpolation variables the CLI struct tags use.
func Vars() kong.Vars {
	return kong.Vars{"config_file": config.DefaultFile}
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := observability.ResolveLevel(c.Verbose)
	slog.SetDefault(slog.New(observability.NewHandler(os.Stderr, c.LogFormat, level)))
	return nil
}
