package storage

import (
	"fmt"
	"time"

	"matchbook/domain/orderbook"
	"matchbook/domain/price"
)

// Column codes for side and order_type. They are the on-disk encoding and
// must not be renumbered.
const (
	sideBuy  int8 = 0
	sideSell int8 = 1

	typeLimit  int8 = 0
	typeMarket int8 = 1
)

// OrderRecord is one row of the orders table. BookSeq is the order's queue
// position in its symbol's book, 0 if it never rested.
type OrderRecord struct {
	ID                uint64 `gorm:"column:id;primaryKey;autoIncrement:false"`
	ClientID          string `gorm:"column:client_id;not null;index:idx_orders_client"`
	Symbol            string `gorm:"column:symbol;not null;index:idx_orders_symbol_side,priority:1"`
	Side              int8   `gorm:"column:side;not null;index:idx_orders_symbol_side,priority:2"`
	OrderType         int8   `gorm:"column:order_type;not null"`
	Price             *int64 `gorm:"column:price"`
	Scale             int    `gorm:"column:scale;not null"`
	Quantity          int64  `gorm:"column:quantity;not null"`
	Status            int8   `gorm:"column:status;not null;index:idx_orders_status"`
	RemainingQuantity int64  `gorm:"column:remaining_quantity;not null"`
	CreatedTS         int64  `gorm:"column:created_ts;not null"` // epoch ms
	UpdatedTS         int64  `gorm:"column:updated_ts;not null"`
	BookSeq           uint64 `gorm:"column:book_seq;not null;default:0"`
}

func (OrderRecord) TableName() string { return "orders" }

// FillRecord is one row of the fills table. OrderID is the maker.
type FillRecord struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID      uint64 `gorm:"column:order_id;not null;index:idx_fills_order"`
	TakerOrderID uint64 `gorm:"column:taker_order_id;not null;index:idx_fills_taker"`
	Symbol       string `gorm:"column:symbol;not null"`
	FillPrice    int64  `gorm:"column:fill_price;not null"`
	Scale        int    `gorm:"column:scale;not null"`
	FillQuantity int64  `gorm:"column:fill_quantity;not null"`
	EventTS      int64  `gorm:"column:event_ts;not null"` // epoch ms
}

func (FillRecord) TableName() string { return "fills" }

func newOrderRecord(o *orderbook.Order, bookSeq uint64) OrderRecord {
	ts := o.CreatedAt().UnixMilli()
	rec := OrderRecord{
		ID:                o.ID(),
		ClientID:          o.ClientID(),
		Symbol:            o.Symbol(),
		Side:              sideCode(o.Side()),
		OrderType:         typeCode(o.Type()),
		Scale:             price.CanonicalScale,
		Quantity:          o.Quantity(),
		Status:            int8(orderbook.StatusNew),
		RemainingQuantity: o.Quantity(),
		BookSeq:           bookSeq,
		CreatedTS:         ts,
		UpdatedTS:         ts,
	}
	if o.Type() == orderbook.Limit {
		px := o.Price()
		rec.Price = &px
	}
	return rec
}

func newFillRecord(f orderbook.Fill) FillRecord {
	return FillRecord{
		OrderID:      f.MakerID,
		TakerOrderID: f.TakerID,
		Symbol:       f.Symbol,
		FillPrice:    f.Price,
		Scale:        price.CanonicalScale,
		FillQuantity: f.Quantity,
		EventTS:      f.Time.UnixMilli(),
	}
}

func (r OrderRecord) SideValue() orderbook.Side {
	if r.Side == sideSell {
		return orderbook.Sell
	}
	return orderbook.Buy
}

func (r OrderRecord) TypeValue() orderbook.OrderType {
	if r.OrderType == typeMarket {
		return orderbook.Market
	}
	return orderbook.Limit
}

func (r OrderRecord) StatusValue() orderbook.Status {
	return orderbook.Status(r.Status)
}

func (r OrderRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.CreatedTS).UTC()
}

// Order rebuilds a resting order from the row. The stored price goes back
// through the normaliser at its stored scale.
func (r OrderRecord) Order() (*orderbook.Order, error) {
	if r.Price == nil {
		return nil, fmt.Errorf("storage: order %d has no price", r.ID)
	}
	return orderbook.Restore(r.ID, orderbook.Intent{
		ClientID: r.ClientID,
		Symbol:   r.Symbol,
		Side:     r.SideValue(),
		Type:     r.TypeValue(),
		RawPrice: *r.Price,
		Scale:    r.Scale,
		Quantity: r.Quantity,
	}, r.RemainingQuantity, r.CreatedAt())
}

func sideCode(s orderbook.Side) int8 {
	switch s {
	case orderbook.Sell:
		return sideSell
	default:
		return sideBuy
	}
}

func typeCode(t orderbook.OrderType) int8 {
	switch t {
	case orderbook.Market:
		return typeMarket
	default:
		return typeLimit
	}
}
