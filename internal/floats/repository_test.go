package floats

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/database"
)

func TestRepository_RoundTrip(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := database.New(ctx, &config.Config{Database: config.DatabaseConfig{URL: url, MaxConns: 2, MinConns: 1}})
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db.Pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.Upsert(ctx, "TSTFLT", 7.25))

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.25, all["TSTFLT"])

	_, err = db.Pool.Exec(ctx, `DELETE FROM float_estimates WHERE ticker = 'TSTFLT'`)
	require.NoError(t, err)
}
