package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/scheduler"
	"github.com/wonny/gapscan/internal/scheduler/jobs"
	"github.com/wonny/gapscan/internal/screener"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the scan on a cron schedule",
	Long: `Run a full scan on a schedule and print each report.

Intraday data (gainers, quotes, volume history, headlines) is refetched on
every run; float estimates are kept for the life of the process.

The schedule uses six cron fields (seconds first). The default scans every
five minutes during US market hours on weekdays.

Example:
  go run ./cmd/gapscan watch
  go run ./cmd/gapscan watch --schedule "0 */1 * * * *" --now`,
	RunE: runWatch,
}

var (
	watchSchedule string
	watchTickers  string
	watchNow      bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron schedule with seconds (default from SCAN_SCHEDULE)")
	watchCmd.Flags().StringVar(&watchTickers, "tickers", "", "comma separated tickers (skips discovery)")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "run one scan immediately on start")
	addCriteriaFlags(watchCmd.Flags())
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	if watchSchedule != "" {
		cfg.Scan.Schedule = watchSchedule
	}

	a, err := newApp(cmd.Context(), cfg, log, appOptions{})
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}
	defer a.Close()

	criteria, err := applyCriteriaFlags(cmd.Flags(), a.criteria())
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline(criteria)
	if err != nil {
		return err
	}

	tickers := splitTickers(watchTickers)
	if watchTickers != "" && len(tickers) == 0 {
		return fmt.Errorf("%w: no valid symbols in --tickers %q", contracts.ErrConfiguration, watchTickers)
	}

	out := newPrinter(cmd.OutOrStdout())
	job := jobs.NewScanJob(pipeline, cfg.Scan.Schedule, screener.Request{Tickers: tickers}, func(r *screener.Report) {
		out.Header(fmt.Sprintf("Scan at %s", r.FinishedAt.Local().Format(TimestampFormat)))
		out.Report(r)
	}, log)

	sched := scheduler.New(log.Component("scheduler"), scheduler.Options{
		MaxRetries: 1,
		RetryDelay: 10 * time.Second,
		RunTimeout: cfg.Scan.ScanTimeout,
	})
	if err := sched.AddJob(job); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	out.Success(fmt.Sprintf("Watching with schedule %q (profile %s)", cfg.Scan.Schedule, a.profile.Name))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	// sched.Stop runs before a.Close and waits for this run
	if watchNow {
		go func() {
			err := sched.RunNow(job.Name())
			switch {
			case err == nil, errors.Is(err, scheduler.ErrStopped):
			case errors.Is(err, scheduler.ErrJobRunning):
				log.Info("Initial scan skipped, a scheduled scan is running")
			default:
				log.WithError(err).Warn("Initial scan failed")
			}
		}()
	}

	<-cmd.Context().Done()

	log.Info("Stopping watch...")
	for _, st := range sched.Stats() {
		out.KeyValue("Runs", fmt.Sprintf("%d (%.0f%% ok)", st.TotalRuns, st.SuccessRate*100), 6)
		if st.LastError != "" {
			out.KeyValue("Error", st.LastError, 6)
		}
	}
	return nil
}
