package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tamtunnel/spacecomms/internal/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = "spacecomms.yaml"
	}
	if !forceInit {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Node.ID = "node-" + uuid.NewString()[:8]

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	fmt.Printf("wrote default configuration to %s\n", path)
	fmt.Println("edit node.id, server.port, and peers[] before running \"spacecommsd start\"")
	return nil
}
