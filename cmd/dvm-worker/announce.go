package main

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"divine-dvm/internal/manager"
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Publish the NIP-89 handler announcement and profile once, then exit",
	RunE:  runAnnounce,
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	zapLog, log := newLogger(cfg)
	defer zapLog.Sync()

	mgr, err := manager.New(cfg, log, manager.Options{Registerer: promclient.NewRegistry()})
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := mgr.Announce(ctx); err != nil {
		return fmt.Errorf("announce failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "announced %s to %d relays\n", mgr.PublicKey(), len(cfg.Relays.Announce))
	return nil
}
