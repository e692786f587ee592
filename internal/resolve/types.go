package resolve

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shukmarket/orders-backend/internal/catalog"
)

// ProductRequest is one structured product ask, already extracted from the
// customer's message by the upstream classifier. This package never sees raw
// model output.
type ProductRequest struct {
	Name          string          `json:"name"`
	SearchAlias   string          `json:"search_alias,omitempty"`
	OutputAlias   string          `json:"output_alias,omitempty"`
	Category      string          `json:"category,omitempty"`
	SubCategory   string          `json:"sub_category,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Units         *int            `json:"units,omitempty"`
	SoldByWeight  bool            `json:"sold_by_weight,omitempty"`
	ExcludeTokens []string        `json:"exclude_tokens,omitempty"`
}

// EffectiveAmount defaults a missing or non-positive amount to 1.
func (r ProductRequest) EffectiveAmount() decimal.Decimal {
	if r.Amount.Sign() <= 0 {
		return decimal.NewFromInt(1)
	}
	return r.Amount
}

// SearchText is the text the resolver tokenizes; the search alias takes
// precedence over the raw name when the classifier provided one.
func (r ProductRequest) SearchText() string {
	if r.SearchAlias != "" {
		return r.SearchAlias
	}
	return r.Name
}

// DisplayName is what follow-up questions call this request.
func (r ProductRequest) DisplayName() string {
	if r.OutputAlias != "" {
		return r.OutputAlias
	}
	return r.Name
}

// Match pairs a request with the catalog row it resolved to.
type Match struct {
	Index   int             `json:"index"`
	Product catalog.Product `json:"product"`
	Request ProductRequest  `json:"request"`
}

// Miss is a request no catalog row matched.
type Miss struct {
	Index   int            `json:"index"`
	Request ProductRequest `json:"request"`
}

// BatchResult partitions the input request indices exactly once between
// Found and NotFound.
type BatchResult struct {
	Found    []Match `json:"found"`
	NotFound []Miss  `json:"not_found"`
}

// AltQuestion is a follow-up the conversation layer renders when a request
// missed or could not be fully reserved. Options may be empty, in which case
// the caller asks for clarification instead of offering substitutes.
type AltQuestion struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Catalog is the slice of the catalog store the resolver and the alternative
// finder consume.
type Catalog interface {
	SearchContains(ctx context.Context, shopID int64, category string, subCategories, tokens []string) ([]catalog.Product, error)
	MostRecentIn(ctx context.Context, shopID int64, category, subCategory string, limit int) ([]catalog.Product, error)
	ListForAlternatives(ctx context.Context, shopID int64, category string, subCategories []string, excludeIDs []int64, limit int) ([]catalog.Product, error)
	AdjacencyGroup(ctx context.Context, category, subCategory string) ([]string, error)
}

// WeightSource yields a shop's token -> inv_df map.
type WeightSource interface {
	WeightsFor(ctx context.Context, shopID int64) (map[string]float64, error)
}
