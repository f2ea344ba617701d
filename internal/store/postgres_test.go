package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"optrade/internal/model"
	"optrade/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPostgres connects to the database named by TEST_DB_DSN and applies the
// schema. Tests needing a live database skip when the variable is unset.
func testPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema), pgx.QueryExecModeSimpleProtocol)
	require.NoError(t, err)
	return NewPostgres(pool)
}

func TestPostgresConcurrentSettleLoserSeesAlreadySettled(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()

	addr := fmt.Sprintf("0xsettle%d", time.Now().UnixNano())
	_, _, err := p.GetOrCreateUser(ctx, addr, grant())
	require.NoError(t, err)

	o := model.Order{
		ID:        fmt.Sprintf("ord_%d_t", time.Now().UnixNano()),
		UserKey:   addr,
		Symbol:    "BTCUSDT",
		Amount:    decimal.NewFromInt(100),
		Direction: types.DirectionLong,
		Status:    types.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	_, err = p.OpenOrder(ctx, o, "USDT")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = p.SettleOrder(ctx, o.ID, decimal.NewFromInt(80), "USDT", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			// every loser blocked on the row lock must observe the committed
			// closed status, never a serialization failure
			require.ErrorIs(t, err, model.ErrAlreadySettled)
		}
	}
	assert.Equal(t, 1, okCount)

	u, err := p.GetUser(ctx, addr)
	require.NoError(t, err)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(1080)))
}
