package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/floats"
	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/database"
	"github.com/wonny/gapscan/pkg/redis"
)

// floatsCmd represents the floats command
var floatsCmd = &cobra.Command{
	Use:   "floats",
	Short: "Manage stored float estimates",
	Long: `Manage float overrides stored in PostgreSQL (DATABASE_URL).

Stored values replace the built-in table on the next scan.

Subcommands:
  list  - print stored estimates
  set   - store an estimate in millions of shares

Example:
  go run ./cmd/gapscan floats list
  go run ./cmd/gapscan floats set GME 305.2`,
}

var (
	floatsListCmd = &cobra.Command{
		Use:   "list",
		Short: "Print stored float estimates",
		RunE:  runFloatsList,
	}

	floatsSetCmd = &cobra.Command{
		Use:   "set [ticker] [millions]",
		Short: "Store a float estimate",
		Args:  cobra.ExactArgs(2),
		RunE:  runFloatsSet,
	}
)

func init() {
	rootCmd.AddCommand(floatsCmd)
	floatsCmd.AddCommand(floatsListCmd)
	floatsCmd.AddCommand(floatsSetCmd)
}

// openFloatRepository connects to the database and ensures the schema
func openFloatRepository(cmd *cobra.Command, cfg *config.Config) (*floats.Repository, *database.DB, error) {

	db, err := database.New(cmd.Context(), cfg)
	if errors.Is(err, database.ErrNotConfigured) {
		return nil, nil, fmt.Errorf("%w: DATABASE_URL is required for float overrides", contracts.ErrConfiguration)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	repo := floats.NewRepository(db.Pool)
	if err := repo.EnsureSchema(cmd.Context()); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

func runFloatsList(cmd *cobra.Command, args []string) error {
	cfg, _, err := bootstrap()
	if err != nil {
		return err
	}
	repo, db, err := openFloatRepository(cmd, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stored, err := repo.LoadAll(cmd.Context())
	if err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	if len(stored) == 0 {
		p.Info("no stored float estimates")
		return nil
	}

	widths := []int{6, 10}
	p.TableHeader([]string{"Ticker", "Float(M)"}, widths)
	for _, t := range contracts.SortedTickers(stored) {
		p.TableRow([]string{string(t), fmt.Sprintf("%.2f", stored[t])}, widths)
	}
	return nil
}

func runFloatsSet(cmd *cobra.Command, args []string) error {
	ticker, millions, err := parseFloatArgs(args[0], args[1])
	if err != nil {
		return err
	}

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	repo, db, err := openFloatRepository(cmd, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.Upsert(cmd.Context(), ticker, millions); err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	p.Success(fmt.Sprintf("%s float set to %.2fM", ticker, millions))

	// Running scanners keep their in-memory copy until restart; the shared
	// Redis entry must go now or other processes replay the old value
	if err := evictSharedFloat(cmd.Context(), cfg, ticker); err != nil {
		log.WithError(err).Warn("Failed to evict cached float")
		p.Warning(fmt.Sprintf("cached float for %s not evicted: %v", ticker, err))
	}
	return nil
}

// evictSharedFloat removes ticker's float from the Redis result cache
func evictSharedFloat(ctx context.Context, cfg *config.Config, ticker contracts.Ticker) error {
	rc, err := redis.New(cfg)
	if err != nil {
		return err
	}
	defer rc.Close()
	if !rc.Enabled() {
		return nil
	}
	cache := resultcache.New(resultcache.Options{L2: redis.NewCache(rc, cacheKeyPrefix)})
	_, err = cache.Evict(ctx, resultcache.KindFloat, ticker)
	return err
}

// parseFloatArgs validates the set arguments
func parseFloatArgs(rawTicker, rawMillions string) (contracts.Ticker, float64, error) {
	ticker := contracts.NormalizeTicker(rawTicker)
	if !ticker.Valid() {
		return "", 0, fmt.Errorf("%w: invalid symbol %q", contracts.ErrConfiguration, rawTicker)
	}
	millions, err := strconv.ParseFloat(rawMillions, 64)
	if err != nil || millions <= 0 {
		return "", 0, fmt.Errorf("%w: float must be a positive number of millions, got %q", contracts.ErrConfiguration, rawMillions)
	}
	return ticker, millions, nil
}
