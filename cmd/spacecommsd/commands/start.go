package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamtunnel/spacecomms/internal/config"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/node"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node and block until an interrupt is received",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	n, err := node.New(cfg, log, node.Options{})
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- n.Serve(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Infof("spacecomms node %s listening on %s:%d", cfg.Node.ID, cfg.Server.Host, cfg.Server.Port)

	select {
	case <-sigCh:
		log.Infof("shutdown signal received, draining sessions")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := n.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-serveDone
		log.Infof("node stopped")
		return nil

	case err := <-serveDone:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
