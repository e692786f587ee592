package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shukmarket/orders-backend/internal/resolve"
)

type Order struct {
	ID              int64           `json:"id"`
	ShopID          int64           `json:"shop_id"`
	CustomerID      string          `json:"customer_id"`
	ExternalID      string          `json:"external_id,omitempty"`
	Status          Status          `json:"status"`
	Price           decimal.Decimal `json:"price"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is one reserved line. Amount carries 3 decimal places for
// weight-sold lines and whole values otherwise; Price is the 2-dp line total
// (unit price x amount). ProductName is joined in for the message layer.
type OrderItem struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Amount         decimal.Decimal `json:"amount"`
	SoldByWeight   bool            `json:"sold_by_weight"`
	RequestedUnits *int            `json:"requested_units,omitempty"`
	Price          decimal.Decimal `json:"price"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type RemoveOp struct {
	OrderItemID int64 `json:"order_item_id"`
}

type SetOp struct {
	OrderItemID  int64           `json:"order_item_id"`
	Amount       decimal.Decimal `json:"amount"`
	SoldByWeight bool            `json:"sold_by_weight"`
	Units        *int            `json:"units,omitempty"`
}

// Patch is one batch of line mutations. Ops always run remove -> set -> add
// inside a single transaction.
type Patch struct {
	Remove []RemoveOp               `json:"remove,omitempty"`
	Set    []SetOp                  `json:"set,omitempty"`
	Add    []resolve.ProductRequest `json:"add,omitempty"`
}

// Shortfall reports a quantity that could not be reserved. Nothing was
// applied for it: the line (if any) kept its previous amount. Available is
// the maximum total the customer could still get (current line amount plus
// remaining stock), and Alternatives carries substitute product names.
type Shortfall struct {
	AddIndex     *int            `json:"add_index,omitempty"`
	OrderItemID  int64           `json:"order_item_id,omitempty"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Requested    decimal.Decimal `json:"requested"`
	Available    decimal.Decimal `json:"available"`
	Alternatives []string        `json:"alternatives,omitempty"`
}

// NotFoundAdd is an add request the resolver could not match; Question
// carries ranked substitutes (or no options, meaning "ask the customer to
// clarify").
type NotFoundAdd struct {
	Index    int                    `json:"index"`
	Request  resolve.ProductRequest `json:"request"`
	Question resolve.AltQuestion    `json:"question"`
}

// CapWarning records a quantity clamped to the per-product maximum. Capping
// is reported, never silent.
type CapWarning struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Requested   decimal.Decimal `json:"requested"`
	Capped      int64           `json:"capped"`
}

type PatchMeta struct {
	OrderID int64           `json:"order_id"`
	Price   decimal.Decimal `json:"price"`
}

// PatchResult is what the message-building layer consumes to answer the
// customer.
type PatchResult struct {
	Items          []OrderItem   `json:"items"`
	Insufficient   []Shortfall   `json:"insufficient,omitempty"`
	NotFoundAdds   []NotFoundAdd `json:"not_found_adds,omitempty"`
	CappedWarnings []CapWarning  `json:"capped_warnings,omitempty"`
	Meta           PatchMeta     `json:"meta"`
}

// CreateResult mirrors PatchResult for initial order creation. Existed is
// true when the external id had already created an order (idempotent retry).
type CreateResult struct {
	Order          Order         `json:"order"`
	Items          []OrderItem   `json:"items"`
	Insufficient   []Shortfall   `json:"insufficient,omitempty"`
	NotFoundAdds   []NotFoundAdd `json:"not_found_adds,omitempty"`
	CappedWarnings []CapWarning  `json:"capped_warnings,omitempty"`
	Existed        bool          `json:"existed"`
}
