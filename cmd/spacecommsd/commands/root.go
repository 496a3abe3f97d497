// Package commands implements the spacecommsd CLI, grounded on the
// teacher pack's cobra root/start command split (marmos91-dittofs's
// cmd/dittofs/commands).
package commands

import "github.com/spf13/cobra"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "spacecommsd",
	Short: "SpaceComms mesh node",
	Long: `spacecommsd runs one node of a SpaceComms mesh: it exchanges
conjunction data messages, object state, and maneuver intent/status with
configured peers over a versioned envelope protocol, and serves a local
HTTP API for ingest and query.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./spacecomms.yaml)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
