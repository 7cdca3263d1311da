package commands

import (
	"fmt"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	return RunInit(root.Config, i.Force)
}

// RunInit writes a starter configuration file with every section present so
// new users can see what is tunable.
func RunInit(configPath string, force bool) error {
	fmt.Printf("Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		return bserrors.Wrap(err, bserrors.CategoryConfig, bserrors.SeverityFatal, "failed to write configuration")
	}
	fmt.Println("initialized successfully")
	return nil
}
