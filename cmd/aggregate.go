package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Synternet/stellar-price-feeder/internal/feeder"
)

var flagPeriodStart *int64

// aggregateCmd runs a single aggregation and prints the price table
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one aggregation and print the prices as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		req, err := request(time.Now())
		if err != nil {
			return err
		}
		if *flagPeriodStart > 0 {
			req.PeriodStart = *flagPeriodStart
		}

		table, err := priceFeeder.Aggregate(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(feeder.NewPriceTable(table))
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	flagPeriodStart = aggregateCmd.Flags().Int64("start", 0, "Unix timestamp of the first period, defaults to the most recent complete periods")
}
