package orderbook

// BookSide holds the price levels of one side of a book, best first:
// ascending for asks, descending for bids.
type BookSide struct {
	side   Side
	levels *levelTree
}

func newBookSide(side Side) *BookSide {
	var before func(a, b int64) bool
	switch side {
	case Buy:
		before = func(a, b int64) bool { return a > b }
	case Sell:
		before = func(a, b int64) bool { return a < b }
	default:
		panic("orderbook: book side needs BUY or SELL")
	}
	return &BookSide{side: side, levels: newLevelTree(before)}
}

func (s *BookSide) Side() Side { return s.side }

// Best returns the best level, or nil when the side is empty.
func (s *BookSide) Best() *PriceLevel {
	return s.levels.First()
}

func (s *BookSide) Level(price int64) *PriceLevel {
	return s.levels.Find(price)
}

// Walk visits levels best-first until fn returns false.
func (s *BookSide) Walk(fn func(*PriceLevel) bool) {
	s.levels.Ascend(fn)
}

func (s *BookSide) Empty() bool {
	return s.levels.Len() == 0
}

// Len is the number of price levels.
func (s *BookSide) Len() int {
	return s.levels.Len()
}

func (s *BookSide) enqueue(o *Order) {
	s.levels.Upsert(o.price).Enqueue(o)
}

// remove unlinks the order at (price, seq) and drops the level once empty.
func (s *BookSide) remove(price int64, seq uint64) *Order {
	lvl := s.levels.Find(price)
	if lvl == nil {
		return nil
	}
	o := lvl.Remove(seq)
	if lvl.Empty() {
		s.levels.Delete(price)
	}
	return o
}
