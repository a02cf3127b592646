package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

func TestInstrumentStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	ins := &domain.Instrument{
		InstrumentID:  "BTC-USD",
		Symbol:        "BTCUSD",
		LotSize:       1e-8,
		BarIntervalMs: domain.BarInterval5Min,
	}

	err := store.Insert(ctx, ins)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "BTC-USD")
	require.NoError(t, err)

	assert.Equal(t, ins.InstrumentID, retrieved.InstrumentID)
	assert.Equal(t, ins.Symbol, retrieved.Symbol)
	assert.InDelta(t, ins.LotSize, retrieved.LotSize, 1e-12)
	assert.Equal(t, ins.BarIntervalMs, retrieved.BarIntervalMs)
}

func TestInstrumentStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	ins := &domain.Instrument{InstrumentID: "BTC-USD", Symbol: "BTCUSD", LotSize: 1, BarIntervalMs: 60000}

	err := store.Insert(ctx, ins)
	require.NoError(t, err)

	err = store.Insert(ctx, ins)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestInstrumentStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInstrumentStore(pool)

	_, err := store.GetByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInstrumentStore_GetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	for _, id := range []string{"ETH-USD", "BTC-USD"} {
		err := store.Insert(ctx, &domain.Instrument{InstrumentID: id, Symbol: id, LotSize: 1, BarIntervalMs: 60000})
		require.NoError(t, err)
	}

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Ordered by instrument_id
	assert.Equal(t, "BTC-USD", all[0].InstrumentID)
	assert.Equal(t, "ETH-USD", all[1].InstrumentID)
}
