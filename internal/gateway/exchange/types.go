package exchange

import "time"

// OrderSide is the exchange-facing side of a single order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderRequest contains parameters for one market order.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Qty           float64
	QtyDecimals   int
	RefPrice      float64 // last close; paper fills happen here
	Leverage      float64
	ReduceOnly    bool
	ClientOrderID string
}

// Fill is the executed result of an order.
type Fill struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Qty           float64
	Price         float64
	FilledAt      time.Time
}
