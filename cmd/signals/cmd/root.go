package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "signals",
	Short: "A trading-signal ingestion service with a mock broker",
	Long: `Signals receives free-text trading instructions, converts them into
structured orders and simulates each order's progression through a
broker-execution lifecycle.

It provides:
  - A webhook endpoint that parses and ingests raw signal text
  - A mock broker that drives orders PENDING -> EXECUTED -> CLOSED
  - A WebSocket feed broadcasting every state change
  - Order storage and win-rate analytics over SQLite`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
