package floats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/logger"
)

// schema creates the overrides table
const schema = `
	CREATE TABLE IF NOT EXISTS float_estimates (
		ticker         TEXT PRIMARY KEY,
		float_millions DOUBLE PRECISION NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Repository reads float overrides from PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new float repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the overrides table when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create float_estimates: %w", err)
	}
	return nil
}

// LoadAll returns every stored override keyed by ticker
func (r *Repository) LoadAll(ctx context.Context) (map[contracts.Ticker]float64, error) {
	query := `
		SELECT ticker, float_millions
		FROM float_estimates
		WHERE float_millions > 0
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query float estimates: %w", err)
	}
	defer rows.Close()

	out := make(map[contracts.Ticker]float64)
	for rows.Next() {
		var ticker string
		var floatMillions float64
		if err := rows.Scan(&ticker, &floatMillions); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[contracts.NormalizeTicker(ticker)] = floatMillions
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// Upsert stores an override
func (r *Repository) Upsert(ctx context.Context, ticker contracts.Ticker, floatMillions float64) error {
	query := `
		INSERT INTO float_estimates (ticker, float_millions, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (ticker) DO UPDATE
		SET float_millions = EXCLUDED.float_millions, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, ticker.String(), floatMillions); err != nil {
		return fmt.Errorf("failed to upsert float estimate: %w", err)
	}
	return nil
}

// overrideSource is satisfied by Repository
type overrideSource interface {
	LoadAll(ctx context.Context) (map[contracts.Ticker]float64, error)
}

// LoadOverrides merges stored overrides into t. Failures leave the table
// as-is and are returned for logging; they never block a scan.
func LoadOverrides(ctx context.Context, t *Table, src overrideSource, log *logger.Logger) error {
	overrides, err := src.LoadAll(ctx)
	if err != nil {
		return err
	}
	n := t.Merge(overrides)
	log.WithField("count", n).Info("Loaded float overrides")
	return nil
}
