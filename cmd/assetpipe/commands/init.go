package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := root.Config
	if path == "" {
		path = config.DefaultFile
	}
	out := g.out()
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", filepath.Clean(path))
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Initialized successfully")
	return nil
}
