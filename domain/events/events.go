package events

import (
	"errors"
	"time"
)

type Type string

const (
	OrderAccepted Type = "order.accepted"
	Trade         Type = "trade"
	OrderCanceled Type = "order.canceled"
	BookSnapshot  Type = "book.snapshot"
)

// Level is one row of a book snapshot.
type Level struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int    `json:"orders"`
}

// Event is the payload carried to every sink. Prices are decimal strings at
// the canonical scale.
type Event struct {
	Type         Type      `json:"type"`
	Symbol       string    `json:"symbol"`
	OrderID      uint64    `json:"order_id,omitempty"`
	MakerOrderID uint64    `json:"maker_order_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	Side         string    `json:"side,omitempty"`
	OrderType    string    `json:"order_type,omitempty"`
	Status       string    `json:"status,omitempty"`
	Price        string    `json:"price,omitempty"`
	Quantity     int64     `json:"quantity,omitempty"`
	Remaining    int64     `json:"remaining,omitempty"`
	Bids         []Level   `json:"bids,omitempty"`
	Asks         []Level   `json:"asks,omitempty"`
	Time         time.Time `json:"ts"`
}

// Sink receives committed events. Emit must not block on slow consumers.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Fanout delivers every event to each sink in order. All sinks see the
// event even when an earlier one fails; the errors are joined.
type Fanout []Sink

func (f Fanout) Emit(e Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) error { return nil })
