package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/screener"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print qualifying stocks",
	Long: `Run one full scan.

Candidates come from the profile's discovery source (Finviz top gainers by
default) unless --tickers names them explicitly. Every candidate is checked
against price, % change, relative volume, float and a recent headline.

Example:
  go run ./cmd/gapscan scan
  go run ./cmd/gapscan scan --tickers GME,PLTR,TSLA
  go run ./cmd/gapscan scan --price-max 10 --rvol-min 3 --json`,
	RunE: runScan,
}

var (
	scanTickers string
	scanJSON    bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanTickers, "tickers", "", "comma separated tickers (skips discovery)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the report as JSON")
	addCriteriaFlags(scanCmd.Flags())
}

// criteriaFlags hold per-run overrides of the profile thresholds
var criteriaFlags struct {
	priceMin      float64
	priceMax      float64
	changeMin     float64
	rvolMin       float64
	floatMax      float64
	lookback      int
	maxCandidates int
}

func addCriteriaFlags(fs *pflag.FlagSet) {
	fs.Float64Var(&criteriaFlags.priceMin, "price-min", 0, "minimum price")
	fs.Float64Var(&criteriaFlags.priceMax, "price-max", 0, "maximum price")
	fs.Float64Var(&criteriaFlags.changeMin, "change-min", 0, "minimum % change vs previous close")
	fs.Float64Var(&criteriaFlags.rvolMin, "rvol-min", 0, "minimum relative volume")
	fs.Float64Var(&criteriaFlags.floatMax, "float-max", 0, "maximum float in millions of shares")
	fs.IntVar(&criteriaFlags.lookback, "lookback", 0, "relative volume lookback in trading days")
	fs.IntVar(&criteriaFlags.maxCandidates, "max-candidates", 0, "maximum candidates to evaluate")
}

// applyCriteriaFlags overlays only the flags the user set
func applyCriteriaFlags(fs *pflag.FlagSet, base contracts.FilterCriteria) (contracts.FilterCriteria, error) {
	c := base
	if fs.Changed("price-min") {
		c.PriceMin = criteriaFlags.priceMin
	}
	if fs.Changed("price-max") {
		c.PriceMax = criteriaFlags.priceMax
	}
	if fs.Changed("change-min") {
		c.PercentChangeMin = criteriaFlags.changeMin
	}
	if fs.Changed("rvol-min") {
		c.RelativeVolumeMin = criteriaFlags.rvolMin
	}
	if fs.Changed("float-max") {
		c.FloatMaxMillions = criteriaFlags.floatMax
	}
	if fs.Changed("lookback") {
		c.LookbackDays = criteriaFlags.lookback
	}
	if fs.Changed("max-candidates") {
		c.MaxCandidates = criteriaFlags.maxCandidates
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}
	defer a.Close()

	criteria, err := applyCriteriaFlags(cmd.Flags(), a.criteria())
	if err != nil {
		return err
	}

	tickers := splitTickers(scanTickers)
	if scanTickers != "" && len(tickers) == 0 {
		return fmt.Errorf("%w: no valid symbols in --tickers %q", contracts.ErrConfiguration, scanTickers)
	}

	pipeline, err := a.newPipeline(criteria)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Scan.ScanTimeout)
	defer cancel()

	report, err := pipeline.Scan(ctx, screener.Request{Tickers: tickers})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	p := newPrinter(out)
	p.Header(fmt.Sprintf("gapscan · profile %s", a.profile.Name))
	p.Criteria(criteria)
	p.Separator()
	p.Report(report)
	if verbose {
		p.Rejections(report)
	}
	return nil
}

// splitTickers turns the --tickers flag into raw symbols
func splitTickers(raw string) []string {
	parsed := contracts.ParseTickers(raw)
	out := make([]string, len(parsed))
	for i, t := range parsed {
		out[i] = string(t)
	}
	return out
}
