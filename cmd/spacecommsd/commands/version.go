package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("spacecommsd %s (%s)\n", Version, Commit)
		return nil
	},
}
