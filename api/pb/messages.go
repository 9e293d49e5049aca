package pb

import (
	"fmt"
	"strconv"
	"strings"
)

type Side string

const (
	Side_BUY  Side = "BUY"
	Side_SELL Side = "SELL"
)

type OrderType string

const (
	OrderType_LIMIT  OrderType = "LIMIT"
	OrderType_MARKET OrderType = "MARKET"
)

// OrderRequest submits one order. Price is an integer at Scale decimal
// places and is ignored for MARKET orders.
type OrderRequest struct {
	ClientId  string    `json:"client_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	OrderType OrderType `json:"order_type"`
	Price     int64     `json:"price"`
	Scale     int32     `json:"scale"`
	Quantity  int64     `json:"quantity"`
}

type OrderResponse struct {
	OrderId           string  `json:"order_id,omitempty"`
	Success           bool    `json:"success"`
	ErrorMessage      string  `json:"error_message,omitempty"`
	Status            string  `json:"status,omitempty"`
	FilledQuantity    int64   `json:"filled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	Fills             []*Fill `json:"fills,omitempty"`
}

// Fill prices are at Scale decimal places.
type Fill struct {
	MakerOrderId string `json:"maker_order_id"`
	Price        int64  `json:"price"`
	Scale        int32  `json:"scale"`
	Quantity     int64  `json:"quantity"`
}

type CancelRequest struct {
	Symbol  string `json:"symbol"`
	OrderId string `json:"order_id"`
}

// CancelResponse.Success is false when the order was not resting.
type CancelResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type OrderBookRequest struct {
	Symbol string `json:"symbol"`
	Depth  int32  `json:"depth"`
}

type OrderBookResponse struct {
	Symbol string   `json:"symbol"`
	Scale  int32    `json:"scale"`
	Bids   []*Level `json:"bids"`
	Asks   []*Level `json:"asks"`
}

type Level struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int32 `json:"orders"`
}

const orderIDPrefix = "OID-"

// FormatOrderID renders an engine id as it appears on the wire.
func FormatOrderID(id uint64) string {
	return orderIDPrefix + strconv.FormatUint(id, 10)
}

// ParseOrderID accepts "OID-42" or a bare "42".
func ParseOrderID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), orderIDPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid order id %q", s)
	}
	return id, nil
}
