package orderbook

import "math"

// PriceLevel is a FIFO queue of resting orders at a single price.
// Orders are linked head to tail in arrival order and indexed by their
// queue seq so a locator can resolve them without walking the list.
type PriceLevel struct {
	Price int64

	head  *Order
	tail  *Order
	bySeq map[uint64]*Order

	// TotalQty is the sum of remaining over the queue.
	TotalQty int64
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{
		Price: price,
		bySeq: make(map[uint64]*Order),
	}
}

// Enqueue appends o at the tail.
func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.bySeq[o.seq] = o
	p.TotalQty += o.remaining
}

// CanAdd reports whether qty more can rest here without TotalQty
// overflowing.
func (p *PriceLevel) CanAdd(qty int64) bool {
	return p.TotalQty <= math.MaxInt64-qty
}

// Head returns the oldest order, or nil.
func (p *PriceLevel) Head() *Order {
	return p.head
}

// Find resolves a queue seq to its order.
func (p *PriceLevel) Find(seq uint64) *Order {
	return p.bySeq[seq]
}

// Remove unlinks the order with the given seq and returns it.
func (p *PriceLevel) Remove(seq uint64) *Order {
	o, ok := p.bySeq[seq]
	if !ok {
		return nil
	}

	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil

	delete(p.bySeq, seq)
	p.TotalQty -= o.remaining
	return o
}

// fill takes qty off a queued order, keeping TotalQty in step.
func (p *PriceLevel) fill(o *Order, qty int64) {
	o.remaining -= qty
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Len is the number of queued orders.
func (p *PriceLevel) Len() int {
	return len(p.bySeq)
}
