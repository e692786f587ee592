package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderUpdated   = "OrderUpdated"
	EventStockRejected  = "StockRejected"
	EventOrderExpired   = "OrderExpired"
	EventCatalogChanged = "CatalogChanged"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    int64           `json:"order_id"`
	ShopID     int64           `json:"shop_id"`
	CustomerID string          `json:"customer_id"`
	ExternalID string          `json:"external_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	ItemCount  int             `json:"item_count"`
}

type OrderUpdatedPayload struct {
	OrderID   int64           `json:"order_id"`
	ShopID    int64           `json:"shop_id"`
	Price     decimal.Decimal `json:"price"`
	ItemCount int             `json:"item_count"`
}

type StockRejectedPayload struct {
	OrderID int64       `json:"order_id"`
	ShopID  int64       `json:"shop_id"`
	Details []Shortfall `json:"details,omitempty"`
}

type OrderExpiredPayload struct {
	OrderID int64 `json:"order_id"`
}

// CatalogChangedPayload is consumed, not produced, here: the admin side
// publishes it on any product create/rename/delete and the worker rebuilds
// the shop's token weights in response.
type CatalogChangedPayload struct {
	ShopID int64 `json:"shop_id"`
}
