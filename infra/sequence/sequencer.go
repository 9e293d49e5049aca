package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing order ids. It is safe for
// concurrent use and never takes a lock.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first id is start+1.
// Fresh database: start = 0. Existing database: start = MAX(orders.id).
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
