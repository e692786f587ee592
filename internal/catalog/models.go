package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog row. StockAmount is nil for products sold without
// stock tracking ("unlimited"). Weight-sold products keep fractional stock
// (kg, 3 decimal places); unit-sold products keep whole values.
type Product struct {
	ID            int64            `json:"id"`
	ShopID        int64            `json:"shop_id"`
	Name          string           `json:"name"`
	DisplayNameEN string           `json:"display_name_en,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	StockAmount   *decimal.Decimal `json:"stock_amount"`
	Category      string           `json:"category"`
	SubCategory   string           `json:"sub_category"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SubCategoryGroup maps a (category, sub_category) pair into a named
// adjacency group; sub-categories sharing a group are substitution
// neighbours ("Cheese" and "Spreads & Cream Cheese").
type SubCategoryGroup struct {
	ID          int64
	GroupName   string
	Category    string
	SubCategory string
}
