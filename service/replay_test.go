package service

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
	"matchbook/infra/storage"
)

func TestRecoverBooksRestoresRestingOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	store := openStore(t, path)
	first := newEngine(t, store)

	submit(t, first, lim(orderbook.Buy, 99, 5))   // 1
	submit(t, first, lim(orderbook.Buy, 99, 3))   // 2
	submit(t, first, lim(orderbook.Sell, 105, 4)) // 3
	submit(t, first, lim(orderbook.Sell, 106, 4)) // 4
	submit(t, first, mkt(orderbook.Buy, 2))       // 5 takes 2 of order 3
	c := submit(t, first, lim(orderbook.Buy, 98, 1))
	ok, err := first.Cancel(context.Background(), "BTC-USD", c.OrderID)
	require.NoError(t, err)
	require.True(t, ok)

	wantBids, wantAsks := first.Snapshot("BTC-USD", -1)

	books := orderbook.NewRegistry()
	n, err := RecoverBooks(context.Background(), store, books, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	ids, err := NewSequencer(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), ids.Current())

	second := New(books, store, ids, WithLogger(zaptest.NewLogger(t)))
	gotBids, gotAsks := second.Snapshot("BTC-USD", -1)
	assert.Equal(t, wantBids, gotBids)
	assert.Equal(t, wantAsks, gotAsks)

	// arrival order survives the restart
	res := submit(t, second, mkt(orderbook.Sell, 6))
	assert.Equal(t, uint64(7), res.OrderID)
	require.Len(t, res.Fills, 2)
	assert.Equal(t, uint64(1), res.Fills[0].MakerID)
	assert.Equal(t, uint64(2), res.Fills[1].MakerID)
	assert.Equal(t, int64(1), res.Fills[1].Quantity)
}

// Ids are drawn before the book lock, so a later id can queue first.
// Recovery has to keep the book's order, not the id order.
func TestRecoverBooksKeepsQueueOrderNotIDOrder(t *testing.T) {
	store := openStore(t, "")
	live := orderbook.NewRegistry()
	book := live.GetOrCreate("BTC-USD")

	rest := func(id uint64) {
		o, err := orderbook.NewOrder(id, lim(orderbook.Sell, 100, 5), t0)
		require.NoError(t, err)
		res, err := book.Submit(o, t0, orderbook.StatusCanceled, func(res *orderbook.MatchResult) error {
			return store.InTx(context.Background(), func(tx storage.Tx) error {
				return persistMatch(tx, res, t0)
			})
		})
		require.NoError(t, err)
		require.True(t, res.Rests)
	}
	rest(2)
	rest(1)
	assert.Equal(t, uint64(1), persisted(t, store, 2).BookSeq)
	assert.Equal(t, uint64(2), persisted(t, store, 1).BookSeq)

	books := orderbook.NewRegistry()
	n, err := RecoverBooks(context.Background(), store, books, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := NewSequencer(context.Background(), store)
	require.NoError(t, err)
	e := New(books, store, ids, WithLogger(zaptest.NewLogger(t)), WithClock(func() time.Time { return t0 }))

	res := submit(t, e, mkt(orderbook.Buy, 5))
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(2), res.Fills[0].MakerID)

	// a fresh order queues behind both restored ones
	late := submit(t, e, lim(orderbook.Sell, 100, 5))
	res = submit(t, e, mkt(orderbook.Buy, 6))
	require.Len(t, res.Fills, 2)
	assert.Equal(t, uint64(1), res.Fills[0].MakerID)
	assert.Equal(t, late.OrderID, res.Fills[1].MakerID)
}

func TestRecoverBooksEmptyStore(t *testing.T) {
	store := openStore(t, "")
	books := orderbook.NewRegistry()

	n, err := RecoverBooks(context.Background(), store, books, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, books.Len())

	ids, err := NewSequencer(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ids.Next())
}

type brokenRecovery struct {
	open []storage.OrderRecord
	err  error
}

func (b brokenRecovery) OpenOrders(context.Context) ([]storage.OrderRecord, error) {
	return b.open, b.err
}

func (b brokenRecovery) LoadNextIDSeed(context.Context) (uint64, error) {
	return 0, b.err
}

func TestRecoverBooksRejectsCorruptState(t *testing.T) {
	boom := errors.New("no such table")
	_, err := RecoverBooks(context.Background(), brokenRecovery{err: boom}, orderbook.NewRegistry(), nil)
	assert.ErrorIs(t, err, boom)

	_, err = NewSequencer(context.Background(), brokenRecovery{err: boom})
	assert.ErrorIs(t, err, boom)

	px := func(v int64) *int64 { return &v }
	crossed := brokenRecovery{open: []storage.OrderRecord{
		{ID: 1, Symbol: "SYM", Side: 0, OrderType: 0, Price: px(101), Scale: 4, Quantity: 1, RemainingQuantity: 1},
		{ID: 2, Symbol: "SYM", Side: 1, OrderType: 0, Price: px(100), Scale: 4, Quantity: 1, RemainingQuantity: 1},
	}}
	_, err = RecoverBooks(context.Background(), crossed, orderbook.NewRegistry(), nil)
	assert.ErrorIs(t, err, orderbook.ErrInvariant)

	noPrice := brokenRecovery{open: []storage.OrderRecord{
		{ID: 1, Symbol: "SYM", Quantity: 1, RemainingQuantity: 1, Scale: 4},
	}}
	_, err = RecoverBooks(context.Background(), noPrice, orderbook.NewRegistry(), nil)
	assert.Error(t, err)
}
