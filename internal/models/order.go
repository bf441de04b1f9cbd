package models

import "time"

// OrderRequest is a market order for a single option contract.
type OrderRequest struct {
	Symbol   string
	Token    uint32
	Exchange Exchange
	Side     OrderSide
	Quantity int
	Price    float64 // reference price; only used by paper fills when no quote is available
	Tag      string
}

// OrderResult represents an accepted order.
type OrderResult struct {
	OrderID  string
	Status   string
	Price    float64
	Mode     TradingMode
	PlacedAt time.Time
	Message  string
}

// Order represents an order in the broker's order book.
type Order struct {
	ID           string
	Symbol       string
	Exchange     Exchange
	Side         OrderSide
	Type         OrderType
	Product      ProductType
	Quantity     int
	Status       string
	AveragePrice float64
	PlacedAt     time.Time
}
