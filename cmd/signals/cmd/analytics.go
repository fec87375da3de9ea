package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/signals/store"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Print aggregate stats for closed orders",
	Long: `Read a signals database and print trade count, win rate and total
profit-and-loss over all CLOSED orders.

Example:
  signals analytics --db ./signals.db`,
	RunE: runAnalytics,
}

var analyticsDBPath string

func init() {
	rootCmd.AddCommand(analyticsCmd)

	analyticsCmd.Flags().StringVar(&analyticsDBPath, "db", "./signals.db", "path to the SQLite database")
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLite(analyticsDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	sum, err := st.Analytics(context.Background())
	if err != nil {
		return fmt.Errorf("analytics: %w", err)
	}

	fmt.Printf("Closed trades: %d\n", sum.TotalTrades)
	fmt.Printf("Win rate:      %.2f%%\n", sum.WinRate)
	fmt.Printf("Total PnL:     %.2f\n", sum.TotalPnL)
	return nil
}
