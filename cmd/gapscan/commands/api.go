package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/gapscan/internal/api"
	"github.com/wonny/gapscan/internal/api/handlers"
	"github.com/wonny/gapscan/internal/contracts"
)

const shutdownGrace = 30 * time.Second

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve on-demand scans over HTTP",
	Long: `Serve the scan API. Upstream results are cached across requests.

Endpoints:
  GET    /health        - Health check
  GET    /metrics       - Prometheus metrics (METRICS_ENABLED)
  POST   /api/scan      - Run a scan; optional JSON criteria overrides and tickers
  GET    /api/criteria  - Default criteria of the active profile
  GET    /api/cache     - Result cache statistics
  DELETE /api/cache     - Drop cached upstream results (memory and Redis)

Example:
  gapscan api --port 8080 --cache-ttl 2m
  curl -XPOST localhost:8080/api/scan -d '{"tickers":["GME"],"price_max":30}'`,
	RunE: runAPIServer,
}

var (
	apiPort     string
	apiCacheTTL time.Duration
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "listen port (default from PORT)")
	apiCmd.Flags().DurationVar(&apiCacheTTL, "cache-ttl", 0, "expire intraday cache entries after this long (0 keeps them until reset)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log, appOptions{VolatileTTL: apiCacheTTL})
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}
	defer a.Close()

	// Each request may carry its own criteria; pipelines share a's cache
	factory := func(c contracts.FilterCriteria) (handlers.Scanner, error) {
		p, err := a.newPipeline(c)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	apiLog := log.Component("api")
	scanHandler := handlers.NewScanHandler(a.criteria(), factory, a.cache, cfg.Scan.ScanTimeout, apiLog)
	server := api.New(cfg, apiLog, api.NewRouter(scanHandler, a.metrics, apiLog))

	newPrinter(cmd.OutOrStdout()).Success(
		fmt.Sprintf("Serving on :%s (profile %s), Ctrl+C to stop", cfg.Port, a.profile.Name))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// A listen failure cancels gctx, which triggers the shutdown goroutine
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
