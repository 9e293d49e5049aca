package orderbook

import (
	"fmt"
	"sync"
	"time"
)

// Locator is the index entry of a resting order. It is a handle, resolved
// by re-looking up the level at Price and the order at Seq.
type Locator struct {
	Side  Side
	Price int64
	Seq   uint64
}

// Level is one aggregated row of a depth snapshot.
type Level struct {
	Price    int64
	Quantity int64
	Orders   int
}

// MakerUpdate is the state of a maker right after its fill.
type MakerUpdate struct {
	OrderID   uint64
	Status    Status
	Remaining int64
}

// MatchResult is the outcome of matching one taker. Makers[i] belongs to
// Fills[i].
type MatchResult struct {
	Taker  *Order
	Fills  []Fill
	Makers []MakerUpdate

	Filled    int64
	Remaining int64
	Status    Status
	Rests     bool

	// RestSeq is the queue position the taker takes when Rests is set.
	// Seqs grow strictly within a book, so they order a level's FIFO and
	// are persisted to rebuild it.
	RestSeq uint64

	makers []*Order
}

// SymbolBook is the order book of one symbol.
type SymbolBook struct {
	symbol string

	mu    sync.Mutex
	bids  *BookSide
	asks  *BookSide
	index map[uint64]Locator
	seq   uint64
}

func NewSymbolBook(symbol string) *SymbolBook {
	return &SymbolBook{
		symbol: NormalizeSymbol(symbol),
		bids:   newBookSide(Buy),
		asks:   newBookSide(Sell),
		index:  make(map[uint64]Locator),
	}
}

func (b *SymbolBook) Symbol() string { return b.symbol }

// -------------------- Commands --------------------

// Submit matches taker against the opposite side under price-time
// priority. The plan is handed to commit first; only if commit succeeds is
// it applied to the book. remainder is the terminal status recorded for an
// unmatched MARKET remainder.
func (b *SymbolBook) Submit(
	taker *Order,
	now time.Time,
	remainder Status,
	commit func(*MatchResult) error,
) (*MatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if taker.symbol != b.symbol {
		return nil, fmt.Errorf("%w: order %d for %s submitted to %s book",
			ErrInvariant, taker.id, taker.symbol, b.symbol)
	}
	if _, ok := b.index[taker.id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateOrder, taker.id)
	}

	res, err := b.plan(taker, now, remainder)
	if err != nil {
		return nil, err
	}
	if commit != nil {
		if err := commit(res); err != nil {
			return nil, err
		}
	}
	b.apply(res)
	return res, nil
}

// Cancel removes a resting order. It reports false when id is not resting
// in this book, which covers filled and already canceled orders. commit
// runs before the order leaves the book and can veto the removal.
func (b *SymbolBook) Cancel(id uint64, commit func(*Order) error) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	loc, ok := b.index[id]
	if !ok {
		return false, nil
	}

	side := b.own(loc.Side)
	lvl := side.Level(loc.Price)
	if lvl == nil {
		return false, fmt.Errorf("%w: order %d points at missing level %d", ErrInvariant, id, loc.Price)
	}
	o := lvl.Find(loc.Seq)
	if o == nil || o.id != id {
		return false, fmt.Errorf("%w: order %d points at missing seq %d", ErrInvariant, id, loc.Seq)
	}

	if commit != nil {
		if err := commit(o); err != nil {
			return false, err
		}
	}

	side.remove(loc.Price, loc.Seq)
	delete(b.index, id)
	o.remaining = 0
	return true, nil
}

// Restore rests a previously persisted LIMIT order at queue position seq
// without matching it. Orders must be restored in ascending seq; seq 0
// takes the next free position.
func (b *SymbolBook) Restore(o *Order, seq uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if o.symbol != b.symbol {
		return fmt.Errorf("%w: order %d for %s restored into %s book",
			ErrInvariant, o.id, o.symbol, b.symbol)
	}
	if o.typ != Limit {
		return fmt.Errorf("%w: only LIMIT orders rest, order %d", ErrInvalidType, o.id)
	}
	if _, ok := b.index[o.id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, o.id)
	}
	if best := b.opposite(o.side).Best(); best != nil && o.crosses(best.Price) {
		return fmt.Errorf("%w: restored order %d crosses %d", ErrInvariant, o.id, best.Price)
	}
	if seq == 0 {
		seq = b.seq + 1
	}
	if seq <= b.seq {
		return fmt.Errorf("%w: order %d restored at seq %d after seq %d", ErrInvariant, o.id, seq, b.seq)
	}
	if lvl := b.own(o.side).Level(o.price); lvl != nil && !lvl.CanAdd(o.remaining) {
		return fmt.Errorf("%w: order %d at %d", ErrLevelOverflow, o.id, o.price)
	}

	b.rest(o, seq)
	return nil
}

// -------------------- Queries --------------------

// Depth returns up to n best levels per side; n < 0 returns every level
// and n == 0 none.
func (b *SymbolBook) Depth(n int) (bids, asks []Level) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return collect(b.bids, n), collect(b.asks, n)
}

func (b *SymbolBook) BestBid() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return best(b.bids)
}

func (b *SymbolBook) BestAsk() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return best(b.asks)
}

// Locate returns the locator of a resting order.
func (b *SymbolBook) Locate(id uint64) (Locator, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.index[id]
	return loc, ok
}

// Len is the number of resting orders.
func (b *SymbolBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.index)
}

// -------------------- Matching --------------------

func (b *SymbolBook) plan(taker *Order, now time.Time, remainder Status) (*MatchResult, error) {
	res := &MatchResult{Taker: taker}
	left := taker.remaining

	var err error
	b.opposite(taker.side).Walk(func(lvl *PriceLevel) bool {
		if !taker.crosses(lvl.Price) {
			return false
		}
		for m := lvl.Head(); m != nil && left > 0; m = m.next {
			if loc, ok := b.index[m.id]; !ok || loc.Seq != m.seq || loc.Price != lvl.Price {
				err = fmt.Errorf("%w: maker %d at %d has no locator", ErrInvariant, m.id, lvl.Price)
				return false
			}
			if m.remaining <= 0 {
				err = fmt.Errorf("%w: maker %d rests with remaining %d", ErrInvariant, m.id, m.remaining)
				return false
			}

			qty := min(left, m.remaining)
			left -= qty

			after := m.remaining - qty
			status := StatusPartiallyFilled
			if after == 0 {
				status = StatusFilled
			}

			res.Fills = append(res.Fills, Fill{
				TakerID:   taker.id,
				MakerID:   m.id,
				Symbol:    b.symbol,
				TakerSide: taker.side,
				Price:     m.price,
				Quantity:  qty,
				Time:      now,
			})
			res.Makers = append(res.Makers, MakerUpdate{OrderID: m.id, Status: status, Remaining: after})
			res.makers = append(res.makers, m)
		}
		return left > 0
	})
	if err != nil {
		return nil, err
	}

	res.Filled = taker.remaining - left
	res.Remaining = left

	switch {
	case left == 0:
		res.Status = StatusFilled
	case taker.typ == Limit:
		if lvl := b.own(taker.side).Level(taker.price); lvl != nil && !lvl.CanAdd(left) {
			return nil, fmt.Errorf("%w: %d more at %d", ErrLevelOverflow, left, taker.price)
		}
		res.Rests = true
		res.RestSeq = b.seq + 1
		res.Status = StatusNew
		if res.Filled > 0 {
			res.Status = StatusPartiallyFilled
		}
	case taker.typ == Market:
		// Market orders never rest.
		res.Status = StatusCanceled
		if remainder == StatusRejected {
			res.Status = StatusRejected
		}
	default:
		return nil, fmt.Errorf("%w: order %d has type %d", ErrInvariant, taker.id, taker.typ)
	}
	return res, nil
}

func (b *SymbolBook) apply(res *MatchResult) {
	taker := res.Taker
	opp := b.opposite(taker.side)

	for i, m := range res.makers {
		opp.Level(m.price).fill(m, res.Fills[i].Quantity)
		if m.remaining == 0 {
			opp.remove(m.price, m.seq)
			delete(b.index, m.id)
		}
	}

	taker.remaining = res.Remaining
	if res.Rests {
		b.rest(taker, res.RestSeq)
	}
}

func (b *SymbolBook) rest(o *Order, seq uint64) {
	b.seq = seq
	o.seq = seq
	b.own(o.side).enqueue(o)
	b.index[o.id] = Locator{Side: o.side, Price: o.price, Seq: o.seq}
}

func (b *SymbolBook) own(s Side) *BookSide {
	switch s {
	case Buy:
		return b.bids
	case Sell:
		return b.asks
	default:
		panic(fmt.Sprintf("orderbook: invalid side %d", s))
	}
}

func (b *SymbolBook) opposite(s Side) *BookSide {
	return b.own(s.Opposite())
}

func collect(s *BookSide, n int) []Level {
	out := make([]Level, 0)
	if n == 0 {
		return out
	}
	s.Walk(func(lvl *PriceLevel) bool {
		out = append(out, Level{Price: lvl.Price, Quantity: lvl.TotalQty, Orders: lvl.Len()})
		return n < 0 || len(out) < n
	})
	return out
}

func best(s *BookSide) (int64, bool) {
	lvl := s.Best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// checkInvariants verifies the locator index against the queues.
func (b *SymbolBook) checkInvariants() error {
	seen := 0
	for _, side := range []*BookSide{b.bids, b.asks} {
		var err error
		side.Walk(func(lvl *PriceLevel) bool {
			if lvl.Empty() {
				err = fmt.Errorf("%w: empty level %d retained", ErrInvariant, lvl.Price)
				return false
			}
			var sum int64
			for o := lvl.Head(); o != nil; o = o.next {
				loc, ok := b.index[o.id]
				if !ok || loc != (Locator{Side: side.side, Price: lvl.Price, Seq: o.seq}) {
					err = fmt.Errorf("%w: order %d locator %+v", ErrInvariant, o.id, loc)
					return false
				}
				sum += o.remaining
				seen++
			}
			if sum != lvl.TotalQty {
				err = fmt.Errorf("%w: level %d total %d, queue sum %d", ErrInvariant, lvl.Price, lvl.TotalQty, sum)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	if seen != len(b.index) {
		return fmt.Errorf("%w: %d queued orders, %d locators", ErrInvariant, seen, len(b.index))
	}
	return nil
}
