package memory

import (
	"context"
	"errors"
	"testing"

	"intraday-backtest-lab/internal/domain"
	"intraday-backtest-lab/internal/storage"
)

func TestInstrumentStore_InsertAndGet(t *testing.T) {
	store := NewInstrumentStore()
	ctx := context.Background()

	ins := &domain.Instrument{
		InstrumentID:  "BTC-USD",
		Symbol:        "BTCUSD",
		LotSize:       1e-8,
		BarIntervalMs: domain.BarInterval5Min,
	}

	if err := store.Insert(ctx, ins); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "BTC-USD")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Symbol != "BTCUSD" || got.LotSize != 1e-8 {
		t.Errorf("instrument mismatch: %+v", got)
	}
}

func TestInstrumentStore_DuplicateKey(t *testing.T) {
	store := NewInstrumentStore()
	ctx := context.Background()

	ins := &domain.Instrument{InstrumentID: "BTC-USD", Symbol: "BTCUSD"}

	if err := store.Insert(ctx, ins); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, ins)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestInstrumentStore_NotFound(t *testing.T) {
	store := NewInstrumentStore()

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInstrumentStore_GetAllSorted(t *testing.T) {
	store := NewInstrumentStore()
	ctx := context.Background()

	for _, id := range []string{"ETH-USD", "BTC-USD", "SOL-USD"} {
		if err := store.Insert(ctx, &domain.Instrument{InstrumentID: id}); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	got, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d instruments, want 3", len(got))
	}
	want := []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	for i, ins := range got {
		if ins.InstrumentID != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, ins.InstrumentID, want[i])
		}
	}
}

func TestInstrumentStore_InvalidInput(t *testing.T) {
	store := NewInstrumentStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil insert: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Instrument{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty id: expected ErrInvalidInput, got %v", err)
	}
}
