package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Synternet/stellar-price-feeder/internal/feeder"
)

var (
	flagSchedule *string
	flagHTTPAddr *string
)

// startCmd schedules aggregations and serves the results
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run scheduled aggregations and serve prices over HTTP and NATS",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := connectNats(); err != nil {
			panic(err)
		}
		if natsConnection != nil {
			sub, err := priceFeeder.SubscribeAggregate(ctx, natsConnection, *flagPrefixName)
			if err != nil {
				panic(err)
			}
			defer sub.Unsubscribe()
		}

		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		_, err := scheduler.AddFunc(*flagSchedule, func() { runScheduled(ctx) })
		if err != nil {
			panic(err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()

		server := &http.Server{
			Addr:              *flagHTTPAddr,
			Handler:           priceFeeder.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP: Listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP: Server failed", "err", err)
				stop()
			}
		}()

		<-ctx.Done()
		slog.Info("Shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP: Shutdown failed", "err", err)
		}
	},
}

func runScheduled(ctx context.Context) {
	req, err := request(time.Now())
	if err != nil {
		slog.Error("SCHEDULER: Bad request", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, feeder.DefaultRequestTimeout)
	defer cancel()

	if _, err := priceFeeder.Run(ctx, req); err != nil {
		slog.Error("SCHEDULER: Aggregation failed", "from", req.PeriodStart, "err", err)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)

	const (
		SCHEDULE  = "SCHEDULE"
		HTTP_ADDR = "HTTP_ADDR"
	)

	setDefault(SCHEDULE, "@every 1m")
	setDefault(HTTP_ADDR, ":8080")

	f := startCmd.Flags()
	flagSchedule = f.String("schedule", os.Getenv(SCHEDULE), "Cron schedule of aggregation runs")
	flagHTTPAddr = f.String("http-addr", os.Getenv(HTTP_ADDR), "HTTP listen address for prices, status and metrics")
}
