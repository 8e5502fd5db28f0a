// cmd/dvm-worker/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dvm-worker",
	Short: "What's Hot on diVine - NIP-90 content discovery worker",
	Long: `dvm-worker listens on Nostr relays for kind 5300 content discovery
requests, asks the diVine relay for its hot-ranked videos and answers each
request with a kind 6300 result and kind 7000 status feedback.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
