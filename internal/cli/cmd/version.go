package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freecasterhq/freecaster-grid/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Shows version information",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version: %s\n", version.Version)
			fmt.Printf("Date:    %s\n", version.Date)
			fmt.Printf("Commit:  %s\n", version.Commit)
		},
	}
}
