package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"matchbook/domain/orderbook"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:       filepath.Join(t.TempDir(), "engine.db"),
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newOrder(t *testing.T, id uint64, side orderbook.Side, typ orderbook.OrderType, px, qty int64) *orderbook.Order {
	t.Helper()
	o, err := orderbook.NewOrder(id, orderbook.Intent{
		ClientID: "C1",
		Symbol:   "sym",
		Side:     side,
		Type:     typ,
		RawPrice: px,
		Scale:    4,
		Quantity: qty,
	}, t0)
	require.NoError(t, err)
	return o
}

func insert(t *testing.T, s *Store, orders ...*orderbook.Order) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		for _, o := range orders {
			if err := tx.InsertNewOrder(o, o.ID()); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestInsertNewOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insert(t, s,
		newOrder(t, 1, orderbook.Buy, orderbook.Limit, 1005000, 10),
		newOrder(t, 2, orderbook.Sell, orderbook.Market, 0, 3),
	)

	rec, err := s.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "SYM", rec.Symbol)
	assert.Equal(t, "C1", rec.ClientID)
	assert.Equal(t, orderbook.Buy, rec.SideValue())
	assert.Equal(t, orderbook.Limit, rec.TypeValue())
	require.NotNil(t, rec.Price)
	assert.Equal(t, int64(1005000), *rec.Price)
	assert.Equal(t, 4, rec.Scale)
	assert.Equal(t, orderbook.StatusNew, rec.StatusValue())
	assert.Equal(t, int64(10), rec.RemainingQuantity)
	assert.Equal(t, t0.UnixMilli(), rec.CreatedTS)

	mkt, err := s.GetOrder(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, mkt.Price)
	assert.Equal(t, orderbook.Sell, mkt.SideValue())
	assert.Equal(t, orderbook.Market, mkt.TypeValue())

	_, err = s.GetOrder(ctx, 99)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateOrderStatusIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	insert(t, s, newOrder(t, 1, orderbook.Buy, orderbook.Limit, 100, 10))

	update := func(status orderbook.Status, remaining int64) error {
		return s.InTx(context.Background(), func(tx Tx) error {
			return tx.UpdateOrderStatus(1, status, remaining, t0.Add(time.Second))
		})
	}

	require.NoError(t, update(orderbook.StatusPartiallyFilled, 6))
	require.NoError(t, update(orderbook.StatusPartiallyFilled, 4))
	assert.ErrorIs(t, update(orderbook.StatusNew, 10), ErrTransitionRefused)

	require.NoError(t, update(orderbook.StatusCanceled, 0))
	require.NoError(t, update(orderbook.StatusCanceled, 0), "same terminal status is idempotent")
	assert.ErrorIs(t, update(orderbook.StatusFilled, 0), ErrTransitionRefused)
	assert.ErrorIs(t, update(orderbook.StatusRejected, 0), ErrTransitionRefused)

	rec, err := s.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, orderbook.StatusCanceled, rec.StatusValue())
	assert.Equal(t, int64(0), rec.RemainingQuantity)
	assert.Equal(t, t0.Add(time.Second).UnixMilli(), rec.UpdatedTS)

	err = s.InTx(context.Background(), func(tx Tx) error {
		return tx.UpdateOrderStatus(404, orderbook.StatusCanceled, 0, t0)
	})
	assert.ErrorIs(t, err, ErrTransitionRefused)
}

func TestTransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insert(t, s, newOrder(t, 1, orderbook.Sell, orderbook.Limit, 100, 10))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertNewOrder(newOrder(t, 2, orderbook.Buy, orderbook.Limit, 100, 4), 0))
		require.NoError(t, tx.AddFill(orderbook.Fill{
			TakerID: 2, MakerID: 1, Symbol: "SYM", Price: 100, Quantity: 4, Time: t0,
		}))
		require.NoError(t, tx.UpdateOrderStatus(1, orderbook.StatusPartiallyFilled, 6, t0))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetOrder(ctx, 2)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	fills, err := s.Fills(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, fills)

	rec, err := s.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, orderbook.StatusNew, rec.StatusValue())
	assert.Equal(t, int64(10), rec.RemainingQuantity)
}

func TestFillsByMakerOrTaker(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insert(t, s,
		newOrder(t, 1, orderbook.Sell, orderbook.Limit, 100, 5),
		newOrder(t, 2, orderbook.Sell, orderbook.Limit, 101, 5),
		newOrder(t, 3, orderbook.Buy, orderbook.Market, 0, 8),
	)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		if err := tx.AddFill(orderbook.Fill{TakerID: 3, MakerID: 1, Symbol: "SYM", Price: 100, Quantity: 5, Time: t0}); err != nil {
			return err
		}
		return tx.AddFill(orderbook.Fill{TakerID: 3, MakerID: 2, Symbol: "SYM", Price: 101, Quantity: 3, Time: t0})
	}))

	taker, err := s.Fills(ctx, 3)
	require.NoError(t, err)
	require.Len(t, taker, 2)
	assert.Equal(t, uint64(1), taker[0].OrderID)
	assert.Equal(t, uint64(2), taker[1].OrderID)
	assert.Equal(t, int64(3), taker[1].FillQuantity)
	assert.Equal(t, 4, taker[1].Scale)

	maker, err := s.Fills(ctx, 2)
	require.NoError(t, err)
	require.Len(t, maker, 1)
	assert.Equal(t, uint64(3), maker[0].TakerOrderID)
	assert.Equal(t, int64(101), maker[0].FillPrice)
}

func TestBestBidAskAndOpenOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.BestBid(ctx, "SYM")
	require.NoError(t, err)
	assert.False(t, ok)

	insert(t, s,
		newOrder(t, 1, orderbook.Buy, orderbook.Limit, 99, 5),
		newOrder(t, 2, orderbook.Buy, orderbook.Limit, 101, 5),
		newOrder(t, 3, orderbook.Sell, orderbook.Limit, 105, 5),
		newOrder(t, 4, orderbook.Sell, orderbook.Limit, 103, 5),
		newOrder(t, 5, orderbook.Buy, orderbook.Market, 0, 5),
	)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		if err := tx.UpdateOrderStatus(2, orderbook.StatusFilled, 0, t0); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(5, orderbook.StatusCanceled, 5, t0)
	}))

	bid, ok, err := s.BestBid(ctx, "sym")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), bid)

	ask, ok, err := s.BestAsk(ctx, "SYM")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(103), ask)

	open, err := s.OpenOrders(ctx)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(open))
	for _, r := range open {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint64{1, 3, 4}, ids)

	o, err := open[0].Order()
	require.NoError(t, err)
	assert.Equal(t, int64(99), o.Price())
	assert.Equal(t, int64(5), o.Remaining())
}

func TestOpenOrdersFollowBookSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// ids were handed out 1, 2, 3 but the book queued 2 first
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		for _, r := range []struct {
			id, seq uint64
		}{{2, 1}, {3, 2}, {1, 3}} {
			if err := tx.InsertNewOrder(newOrder(t, r.id, orderbook.Sell, orderbook.Limit, 100, 5), r.seq); err != nil {
				return err
			}
		}
		return nil
	}))

	open, err := s.OpenOrders(ctx)
	require.NoError(t, err)
	var ids, seqs []uint64
	for _, r := range open {
		ids = append(ids, r.ID)
		seqs = append(seqs, r.BookSeq)
	}
	assert.Equal(t, []uint64{2, 3, 1}, ids)
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestLoadNextIDSeed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed, err := s.LoadNextIDSeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seed)

	insert(t, s,
		newOrder(t, 7, orderbook.Buy, orderbook.Limit, 99, 5),
		newOrder(t, 42, orderbook.Buy, orderbook.Limit, 99, 5),
	)
	seed, err = s.LoadNextIDSeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seed)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.db")
	s, err := Open(Config{Path: path}, nil)
	require.NoError(t, err)
	insert(t, s, newOrder(t, 1, orderbook.Buy, orderbook.Limit, 99, 5))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: path}, nil)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Quantity)
}

func TestInTxRetriesBusy(t *testing.T) {
	s := openTestStore(t)

	calls := 0
	err := s.InTx(context.Background(), func(tx Tx) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = s.InTx(context.Background(), func(tx Tx) error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "first attempt plus MaxRetries")

	calls = 0
	err = s.InTx(context.Background(), func(tx Tx) error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, retryDelay(10*time.Millisecond, 0))
	assert.Equal(t, 40*time.Millisecond, retryDelay(10*time.Millisecond, 2))
	assert.Equal(t, maxRetryDelay, retryDelay(time.Second, 10))
	assert.Equal(t, maxRetryDelay, retryDelay(time.Second, 64))
	assert.Equal(t, 10*time.Millisecond, retryDelay(0, -1))
}
