package orderbook

import (
	"fmt"
	"strings"
	"time"

	"matchbook/domain/price"
)

type Side int8
type OrderType int8
type Status int8

// Wire and storage codes. Zero is deliberately invalid.
const (
	Buy  Side = 1
	Sell Side = 2
)

const (
	Limit  OrderType = 1
	Market OrderType = 2
)

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side a taker on s matches against.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		panic(fmt.Sprintf("orderbook: invalid side %d", s))
	}
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide accepts "BUY"/"SELL" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

func (t OrderType) Valid() bool {
	return t == Limit || t == Market
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// ParseOrderType accepts "LIMIT"/"MARKET" in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
// Re-applying the current status is allowed so updates stay idempotent.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next != StatusNew
}

// Intent is an unvalidated order request as received from a transport.
// RawPrice and Scale are ignored for MARKET orders.
type Intent struct {
	ClientID string
	Symbol   string
	Side     Side
	Type     OrderType
	RawPrice int64
	Scale    int
	Quantity int64
}

// Validate checks the intent without assigning an id. A nil result
// guarantees NewOrder will succeed for the same intent.
func (in Intent) Validate() error {
	_, err := in.canonicalPrice()
	return err
}

func (in Intent) canonicalPrice() (int64, error) {
	if NormalizeSymbol(in.Symbol) == "" {
		return 0, ErrInvalidSymbol
	}
	if in.Quantity <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQuantity, in.Quantity)
	}
	if !in.Side.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSide, in.Side)
	}

	switch in.Type {
	case Market:
		return 0, nil
	case Limit:
		if in.RawPrice <= 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidPrice, in.RawPrice)
		}
		return price.Normalize(in.RawPrice, in.Scale)
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidType, in.Type)
	}
}

// Order is a validated order with a canonical price. Everything but the
// remaining quantity is fixed at construction; remaining only changes
// under the owning SymbolBook's lock.
type Order struct {
	id        uint64
	clientID  string
	symbol    string
	side      Side
	typ       OrderType
	price     int64
	quantity  int64
	remaining int64
	createdAt time.Time

	// queue handle, assigned when the order rests
	seq  uint64
	next *Order
	prev *Order
}

// NewOrder validates in and builds an order whose price is canonical.
func NewOrder(id uint64, in Intent, now time.Time) (*Order, error) {
	px, err := in.canonicalPrice()
	if err != nil {
		return nil, err
	}
	return &Order{
		id:        id,
		clientID:  in.ClientID,
		symbol:    NormalizeSymbol(in.Symbol),
		side:      in.Side,
		typ:       in.Type,
		price:     px,
		quantity:  in.Quantity,
		remaining: in.Quantity,
		createdAt: now,
	}, nil
}

// Restore rebuilds a resting order from durable state. The persisted price
// is passed through the normaliser at its stored scale like any other.
func Restore(id uint64, in Intent, remaining int64, createdAt time.Time) (*Order, error) {
	o, err := NewOrder(id, in, createdAt)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 || remaining > o.quantity {
		return nil, fmt.Errorf("%w: order %d remaining %d of %d",
			ErrInvalidQuantity, id, remaining, o.quantity)
	}
	o.remaining = remaining
	return o, nil
}

func (o *Order) ID() uint64           { return o.id }
func (o *Order) ClientID() string     { return o.clientID }
func (o *Order) Symbol() string       { return o.symbol }
func (o *Order) Side() Side           { return o.side }
func (o *Order) Type() OrderType      { return o.typ }
func (o *Order) Price() int64         { return o.price }
func (o *Order) Quantity() int64      { return o.quantity }
func (o *Order) Remaining() int64     { return o.remaining }
func (o *Order) Filled() int64        { return o.quantity - o.remaining }
func (o *Order) CreatedAt() time.Time { return o.createdAt }

// Next walks a price level queue from head to tail.
func (o *Order) Next() *Order {
	return o.next
}

// crosses reports whether a taker o trades against a resting level at px.
func (o *Order) crosses(px int64) bool {
	switch o.typ {
	case Market:
		return true
	case Limit:
		switch o.side {
		case Buy:
			return px <= o.price
		case Sell:
			return px >= o.price
		}
	}
	panic(fmt.Sprintf("orderbook: order %d has invalid side/type %d/%d", o.id, o.side, o.typ))
}

// Fill is one matched quantity between a taker and a maker at the maker's
// price. Fills are append-only.
type Fill struct {
	TakerID   uint64
	MakerID   uint64
	Symbol    string
	TakerSide Side
	Price     int64
	Quantity  int64
	Time      time.Time
}

// NormalizeSymbol trims and upper-cases a symbol so "sym" and "SYM" share
// a book.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
