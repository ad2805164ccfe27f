package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eve-arbitrage/internal/api"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newScanCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan and print the top opportunities",
		Long: `Refresh stale region snapshots, evaluate every configured route and
replace the stored result set.

Examples:
  eve-arbitrage scan
  eve-arbitrage scan --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Coordinator.RunScan(ctx)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			out := cmd.OutOrStdout()
			printReport(out, report)
			fmt.Fprintln(out)
			printOpportunities(out, app.Coordinator.Opportunities(engine.OpportunityQuery{Limit: limit}))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of opportunities to print")
	return cmd
}

func newServeCommand(version string) *cobra.Command {
	var addr string
	var interval time.Duration
	var scanOnStart bool
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, optionally scanning on an interval",
		Long: `Start the HTTP API. With --interval (or scan.interval in config) a scan is
triggered on every tick; a tick that lands on a running scan is skipped.

Examples:
  eve-arbitrage serve
  eve-arbitrage serve --addr :8080 --interval 15m --scan-on-start`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			logger.Banner(version)
			if addr == "" {
				addr = app.Config.Server.Addr
			}
			if !cmd.Flags().Changed("interval") {
				interval = app.Config.Scan.Interval
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(app.Coordinator, app.ESI, app.Metrics.Handler(), version).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Success("HTTP", "Listening on "+addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			if scanOnStart {
				triggerScan(ctx, app)
			}
			go runScheduler(ctx, app, interval, retention)

			select {
			case <-ctx.Done():
				logger.Info("HTTP", "Shutting down")
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Scan interval, 0 disables (default: scan.interval)")
	cmd.Flags().BoolVar(&scanOnStart, "scan-on-start", false, "Trigger a scan immediately")
	cmd.Flags().DurationVar(&retention, "history-retention", 30*24*time.Hour, "Delete scan history older than this")
	return cmd
}

func triggerScan(ctx context.Context, app *App) {
	id, err := app.Coordinator.TriggerScan(ctx)
	switch {
	case errors.Is(err, engine.ErrScanRunning):
		logger.Debug("SCAN", "Previous scan still running, tick skipped")
	case err != nil:
		logger.Error("SCAN", err.Error())
	default:
		logger.Info("SCAN", "Triggered scan "+shortID(id))
	}
}

// runScheduler triggers scans and prunes history until ctx is done.
func runScheduler(ctx context.Context, app *App, interval, retention time.Duration) {
	prune := func() {
		if retention <= 0 {
			return
		}
		n, err := app.Store.PruneHistory(ctx, retention)
		if err != nil {
			logger.Warn("DB", fmt.Sprintf("Prune history: %v", err))
			return
		}
		if n > 0 {
			logger.Info("DB", fmt.Sprintf("Pruned %d scan records", n))
		}
	}
	prune()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerScan(ctx, app)
			prune()
		}
	}
}

func newTopCommand() *cobra.Command {
	var q engine.OpportunityQuery

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print opportunities from the last completed scan",
		Long: `Filter the stored result set. Does not contact ESI.

Examples:
  eve-arbitrage top
  eve-arbitrage top --item plate --dest Domain --min-margin 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			set := app.Coordinator.Results()
			out := cmd.OutOrStdout()
			if set.ComputedAt.IsZero() {
				fmt.Fprintln(out, "No scan has completed yet. Run `eve-arbitrage scan` first.")
				return nil
			}
			fmt.Fprintf(out, "Scan %s computed %s\n\n", shortID(set.ScanID), set.ComputedAt.Format(time.RFC3339))
			printOpportunities(out, app.Coordinator.Opportunities(q))
			return nil
		},
	}

	cmd.Flags().StringVar(&q.Item, "item", "", "Item name substring")
	cmd.Flags().StringVar(&q.Source, "source", "", "Source region name")
	cmd.Flags().StringVar(&q.Dest, "dest", "", "Destination region name")
	cmd.Flags().Float64Var(&q.MinMargin, "min-margin", 0, "Minimum margin percent")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "Maximum rows")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last scan's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			printStatus(cmd.OutOrStdout(), app.Coordinator.Status())
			return nil
		},
	}
}

func newPriceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "price <item name>",
		Short: "Show an item's best prices in every configured region",
		Long: `Look up an item by its exact name and print the lowest sell and highest
buy in each region, refreshing snapshots older than scan.lookup_ttl.

Examples:
  eve-arbitrage price Tritanium
  eve-arbitrage price "Large Skill Injector"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			name := strings.Join(args, " ")
			lookup, err := app.Coordinator.LookupItemPrices(ctx, name)
			if errors.Is(err, esi.ErrTypeNotFound) {
				return fmt.Errorf("unknown item %q", name)
			}
			if err != nil {
				return err
			}
			printPrices(cmd.OutOrStdout(), lookup)
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			recs, err := app.Coordinator.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of scans to list")
	return cmd
}
