package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/events"
	"matchbook/domain/orderbook"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	"matchbook/infra/storage"
)

// Store is the durable side of the engine.
type Store interface {
	InTx(ctx context.Context, fn func(storage.Tx) error) error
	GetOrder(ctx context.Context, id uint64) (*storage.OrderRecord, error)
	Fills(ctx context.Context, orderID uint64) ([]storage.FillRecord, error)
	BestBid(ctx context.Context, symbol string) (int64, bool, error)
	BestAsk(ctx context.Context, symbol string) (int64, bool, error)
}

// SubmitResult is the outcome of one submit. A rejected intent has
// Accepted false, a Reason and no OrderID.
type SubmitResult struct {
	Accepted  bool
	Reason    string
	OrderID   uint64
	Symbol    string
	Status    orderbook.Status
	Filled    int64
	Remaining int64
	Fills     []orderbook.Fill
}

// TopOfBook is the persisted best bid and ask of a symbol.
type TopOfBook struct {
	Symbol string
	Bid    int64
	HasBid bool
	Ask    int64
	HasAsk bool
}

// OrderView is an order row with the fills it took part in.
type OrderView struct {
	Order storage.OrderRecord
	Fills []storage.FillRecord
}

type Engine struct {
	books     *orderbook.Registry
	store     Store
	ids       *sequence.Sequencer
	remainder orderbook.Status

	sink    events.Sink
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithEventSink(s events.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithMarketRemainder sets the final status of an unfilled MARKET
// remainder: StatusCanceled (default) or StatusRejected.
func WithMarketRemainder(s orderbook.Status) Option {
	return func(e *Engine) { e.remainder = s }
}

// New wires an engine. ids must already be seeded past every persisted
// order id.
func New(books *orderbook.Registry, store Store, ids *sequence.Sequencer, opts ...Option) *Engine {
	e := &Engine{
		books:     books,
		store:     store,
		ids:       ids,
		remainder: orderbook.StatusCanceled,
		sink:      events.Discard,
		log:       zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.remainder != orderbook.StatusRejected {
		e.remainder = orderbook.StatusCanceled
	}
	e.metrics.Books.Set(float64(books.Len()))
	return e
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Submit validates in, assigns an id and matches it. Validation failures
// come back as a rejected result with a nil error and consume no id. A
// remainder that would overflow its price level is rejected the same way
// after its id is drawn.
// Once matching starts it runs to completion even if ctx is canceled.
func (e *Engine) Submit(ctx context.Context, in orderbook.Intent) (SubmitResult, error) {
	if err := in.Validate(); err != nil {
		e.metrics.Orders.WithLabelValues(metrics.ResultRejected).Inc()
		e.log.Debug("order rejected",
			zap.String("client_id", in.ClientID),
			zap.String("symbol", in.Symbol),
			zap.Error(err),
		)
		return SubmitResult{Reason: err.Error()}, nil
	}

	ctx = context.WithoutCancel(ctx)
	now := e.now()

	taker, err := orderbook.NewOrder(e.ids.Next(), in, now)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("build order: %w", err)
	}
	book := e.book(taker.Symbol())

	start := time.Now()
	res, err := book.Submit(taker, now, e.remainder, func(res *orderbook.MatchResult) error {
		if err := e.store.InTx(ctx, func(tx storage.Tx) error {
			return persistMatch(tx, res, now)
		}); err != nil {
			return &PersistenceError{Op: "submit", Err: err}
		}
		// Still under the book lock, so one symbol's events leave in
		// commit order.
		e.emitSubmit(res, now)
		return nil
	})
	if orderbook.IsRejection(err) {
		// The id is spent; ids only need to be unique.
		e.metrics.Orders.WithLabelValues(metrics.ResultRejected).Inc()
		e.log.Debug("order rejected",
			zap.Uint64("order_id", taker.ID()),
			zap.String("symbol", taker.Symbol()),
			zap.Error(err),
		)
		return SubmitResult{Reason: err.Error()}, nil
	}
	if err != nil {
		e.metrics.Orders.WithLabelValues(metrics.ResultFailed).Inc()
		e.log.Error("submit failed",
			zap.Uint64("order_id", taker.ID()),
			zap.String("symbol", taker.Symbol()),
			zap.Error(err),
		)
		return SubmitResult{}, err
	}

	e.metrics.Orders.WithLabelValues(metrics.ResultAccepted).Inc()
	e.metrics.ObserveMatch(time.Since(start), len(res.Fills), res.Filled)
	e.log.Debug("order accepted",
		zap.Uint64("order_id", taker.ID()),
		zap.String("symbol", taker.Symbol()),
		zap.Stringer("side", taker.Side()),
		zap.Stringer("status", res.Status),
		zap.Int("fills", len(res.Fills)),
	)

	return SubmitResult{
		Accepted:  true,
		OrderID:   taker.ID(),
		Symbol:    taker.Symbol(),
		Status:    res.Status,
		Filled:    res.Filled,
		Remaining: res.Remaining,
		Fills:     res.Fills,
	}, nil
}

// persistMatch writes one match as a single transaction: the taker row,
// one fill row and maker update per match iteration, then the taker's
// final status.
func persistMatch(tx storage.Tx, res *orderbook.MatchResult, now time.Time) error {
	var seq uint64
	if res.Rests {
		seq = res.RestSeq
	}
	if err := tx.InsertNewOrder(res.Taker, seq); err != nil {
		return err
	}
	for i, f := range res.Fills {
		if err := tx.AddFill(f); err != nil {
			return err
		}
		m := res.Makers[i]
		if err := tx.UpdateOrderStatus(m.OrderID, m.Status, m.Remaining, now); err != nil {
			return err
		}
	}
	if res.Status == orderbook.StatusNew {
		return nil
	}
	return tx.UpdateOrderStatus(res.Taker.ID(), res.Status, res.Remaining, now)
}

// Cancel cancels a resting order. It reports false when the order is not
// resting in symbol's book: unknown, already filled or already canceled.
func (e *Engine) Cancel(ctx context.Context, symbol string, id uint64) (bool, error) {
	book, ok := e.books.Lookup(symbol)
	if !ok {
		e.metrics.Cancels.WithLabelValues(metrics.ResultNotFound).Inc()
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	now := e.now()

	ok, err := book.Cancel(id, func(o *orderbook.Order) error {
		if err := e.store.InTx(ctx, func(tx storage.Tx) error {
			return tx.UpdateOrderStatus(o.ID(), orderbook.StatusCanceled, 0, now)
		}); err != nil {
			return &PersistenceError{Op: "cancel", Err: err}
		}
		e.emit(cancelEvent(o, now))
		return nil
	})
	if err != nil {
		e.metrics.Cancels.WithLabelValues(metrics.ResultFailed).Inc()
		e.log.Error("cancel failed", zap.Uint64("order_id", id), zap.String("symbol", book.Symbol()), zap.Error(err))
		return false, err
	}
	if !ok {
		e.metrics.Cancels.WithLabelValues(metrics.ResultNotFound).Inc()
		return false, nil
	}

	e.metrics.Cancels.WithLabelValues(metrics.ResultCanceled).Inc()
	e.log.Debug("order canceled", zap.Uint64("order_id", id), zap.String("symbol", book.Symbol()))
	return true, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// AllLevels asks Snapshot for every level of a book.
const AllLevels = -1

// DepthOrAll maps a configured default depth to a Snapshot depth: zero
// means every level.
func DepthOrAll(depth int) int {
	if depth == 0 {
		return AllLevels
	}
	return depth
}

// Snapshot returns up to depth best levels per side of symbol's live book;
// a negative depth returns all and zero none. An unknown symbol has an
// empty book.
func (e *Engine) Snapshot(symbol string, depth int) (bids, asks []orderbook.Level) {
	book, ok := e.books.Lookup(symbol)
	if !ok {
		return []orderbook.Level{}, []orderbook.Level{}
	}
	return book.Depth(depth)
}

// Symbols lists every symbol that has a book.
func (e *Engine) Symbols() []string {
	return e.books.Symbols()
}

// TopOfBook reads the best bid and ask from durable state.
func (e *Engine) TopOfBook(ctx context.Context, symbol string) (TopOfBook, error) {
	top := TopOfBook{Symbol: orderbook.NormalizeSymbol(symbol)}

	var err error
	if top.Bid, top.HasBid, err = e.store.BestBid(ctx, top.Symbol); err != nil {
		return TopOfBook{}, &PersistenceError{Op: "best bid", Err: err}
	}
	if top.Ask, top.HasAsk, err = e.store.BestAsk(ctx, top.Symbol); err != nil {
		return TopOfBook{}, &PersistenceError{Op: "best ask", Err: err}
	}
	return top, nil
}

// Order returns the persisted order with its fills. Unknown ids wrap
// storage.ErrOrderNotFound.
func (e *Engine) Order(ctx context.Context, id uint64) (OrderView, error) {
	rec, err := e.store.GetOrder(ctx, id)
	if errors.Is(err, storage.ErrOrderNotFound) {
		return OrderView{}, err
	}
	if err != nil {
		return OrderView{}, &PersistenceError{Op: "get order", Err: err}
	}
	fills, err := e.store.Fills(ctx, id)
	if err != nil {
		return OrderView{}, &PersistenceError{Op: "get fills", Err: err}
	}
	return OrderView{Order: *rec, Fills: fills}, nil
}

// -------------------- internals --------------------

func (e *Engine) book(symbol string) *orderbook.SymbolBook {
	if b, ok := e.books.Lookup(symbol); ok {
		return b
	}
	b := e.books.GetOrCreate(symbol)
	e.metrics.Books.Set(float64(e.books.Len()))
	e.log.Info("order book created", zap.String("symbol", b.Symbol()))
	return b
}

func (e *Engine) emit(ev events.Event) {
	if err := e.sink.Emit(ev); err != nil {
		e.log.Warn("event sink failed",
			zap.String("type", string(ev.Type)),
			zap.String("symbol", ev.Symbol),
			zap.Error(err),
		)
	}
}

func (e *Engine) emitSubmit(res *orderbook.MatchResult, now time.Time) {
	e.emit(acceptedEvent(res, now))
	for i, f := range res.Fills {
		e.emit(tradeEvent(f, res.Makers[i]))
	}
}
