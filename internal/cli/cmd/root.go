package cmd

import (
	"github.com/spf13/cobra"

	"github.com/freecasterhq/freecaster-grid/internal/utils"
)

// NewServerRootCmd builds the base command of the freecaster-grid server
// binary. Subcommands are attached by the caller.
func NewServerRootCmd() *cobra.Command {
	cobra.OnInitialize(initConfig)

	cmdRoot := cobra.Command{
		Use:   "freecaster-grid [--config|-c <string>] [--debug]",
		Short: "freecaster-grid is a peer-to-peer liveness monitor without a center",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.InitObservability()
		},
	}

	addServerFlags(&cmdRoot)
	cmdRoot.AddCommand(newVersionCmd())

	return &cmdRoot
}
