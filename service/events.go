package service

import (
	"time"

	"matchbook/domain/events"
	"matchbook/domain/orderbook"
	"matchbook/domain/price"
)

func acceptedEvent(res *orderbook.MatchResult, now time.Time) events.Event {
	t := res.Taker
	ev := events.Event{
		Type:      events.OrderAccepted,
		Symbol:    t.Symbol(),
		OrderID:   t.ID(),
		ClientID:  t.ClientID(),
		Side:      t.Side().String(),
		OrderType: t.Type().String(),
		Status:    res.Status.String(),
		Quantity:  t.Quantity(),
		Remaining: res.Remaining,
		Time:      now,
	}
	if t.Type() == orderbook.Limit {
		ev.Price = price.Format(t.Price())
	}
	return ev
}

func tradeEvent(f orderbook.Fill, maker orderbook.MakerUpdate) events.Event {
	return events.Event{
		Type:         events.Trade,
		Symbol:       f.Symbol,
		OrderID:      f.TakerID,
		MakerOrderID: f.MakerID,
		Side:         f.TakerSide.String(),
		Status:       maker.Status.String(),
		Price:        price.Format(f.Price),
		Quantity:     f.Quantity,
		Remaining:    maker.Remaining,
		Time:         f.Time,
	}
}

func cancelEvent(o *orderbook.Order, now time.Time) events.Event {
	return events.Event{
		Type:      events.OrderCanceled,
		Symbol:    o.Symbol(),
		OrderID:   o.ID(),
		ClientID:  o.ClientID(),
		Side:      o.Side().String(),
		Status:    orderbook.StatusCanceled.String(),
		Price:     price.Format(o.Price()),
		Quantity:  o.Quantity(),
		Remaining: o.Remaining(),
		Time:      now,
	}
}

func snapshotEvent(symbol string, bids, asks []orderbook.Level, now time.Time) events.Event {
	return events.Event{
		Type:   events.BookSnapshot,
		Symbol: symbol,
		Bids:   levels(bids),
		Asks:   levels(asks),
		Time:   now,
	}
}

func levels(in []orderbook.Level) []events.Level {
	out := make([]events.Level, 0, len(in))
	for _, l := range in {
		out = append(out, events.Level{
			Price:    price.Format(l.Price),
			Quantity: l.Quantity,
			Orders:   l.Orders,
		})
	}
	return out
}
