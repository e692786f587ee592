package resolve

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

// fakeCatalog implements Catalog over an in-memory product list, mimicking
// the store's containment semantics.
type fakeCatalog struct {
	products  []catalog.Product
	adjacency map[string][]string // "category\x00sub" -> group members
}

func (f *fakeCatalog) matches(p catalog.Product, tokens []string) bool {
	name := tokenize.Normalize(p.Name)
	display := tokenize.Normalize(p.DisplayNameEN)
	for _, tok := range tokens {
		if !contains(name, tok) && !contains(display, tok) {
			return false
		}
	}
	return true
}

func contains(haystack, needle string) bool {
	return haystack != "" && needle != "" && strings.Contains(haystack, needle)
}

func (f *fakeCatalog) SearchContains(_ context.Context, shopID int64, category string, subCategories, tokens []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if p.ShopID != shopID {
			continue
		}
		if category != "" {
			if p.Category != category {
				continue
			}
			if len(subCategories) > 0 && !containsStr(subCategories, p.SubCategory) {
				continue
			}
		}
		if f.matches(p, tokens) {
			out = append(out, p)
		}
	}
	return out, nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeCatalog) MostRecentIn(_ context.Context, shopID int64, category, subCategory string, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if p.ShopID == shopID && p.Category == category && p.SubCategory == subCategory {
			out = append(out, p)
		}
	}
	// newest first, ties by highest id
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			a, b := out[i], out[j]
			swap := false
			if b.UpdatedAt.After(a.UpdatedAt) {
				swap = true
			} else if b.UpdatedAt.Equal(a.UpdatedAt) && b.ID > a.ID {
				swap = true
			}
			if swap {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCatalog) ListForAlternatives(_ context.Context, shopID int64, category string, subCategories []string, excludeIDs []int64, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if p.ShopID != shopID {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if len(subCategories) > 0 && !containsStr(subCategories, p.SubCategory) {
			continue
		}
		skip := false
		for _, id := range excludeIDs {
			if p.ID == id {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) AdjacencyGroup(_ context.Context, category, subCategory string) ([]string, error) {
	if g, ok := f.adjacency[category+"\x00"+subCategory]; ok {
		return g, nil
	}
	return []string{subCategory}, nil
}

type fakeWeights map[string]float64

func (f fakeWeights) WeightsFor(context.Context, int64) (map[string]float64, error) {
	return f, nil
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stock(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

func dairyCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: []catalog.Product{
			{ID: 1, ShopID: 1, Name: "2% Milk 1L", Price: price("6.90"), StockAmount: stock(5), Category: "Dairy", SubCategory: "Milk"},
			{ID: 2, ShopID: 1, Name: "Almond Milk 1L", Price: price("12.50"), StockAmount: stock(3), Category: "Dairy", SubCategory: "Milk"},
			{ID: 3, ShopID: 1, Name: "Cream Cheese Spread", Price: price("9.90"), StockAmount: stock(7), Category: "Dairy", SubCategory: "Spreads & Cream Cheese"},
			{ID: 4, ShopID: 1, Name: "Milk Chocolate Bar", Price: price("5.00"), StockAmount: stock(20), Category: "Sweets", SubCategory: "Chocolate"},
		},
		adjacency: map[string][]string{
			"Dairy\x00Cheese": {"Cheese", "Spreads & Cream Cheese"},
		},
	}
}

func newResolver(c *fakeCatalog) *Resolver {
	return &Resolver{Catalog: c, Weights: fakeWeights{}}
}

func TestResolve_PrefersFewestExtraTokens(t *testing.T) {
	r := newResolver(dairyCatalog())
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Name: "milk", Category: "Dairy", SubCategory: "Milk", Amount: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	// "2% Milk 1L" carries cheaper extra tokens (a pure number and a
	// digit-bearing one) than "Almond Milk 1L".
	assert.Equal(t, int64(1), p.ID)
}

func TestResolve_AdjacencyTier(t *testing.T) {
	r := newResolver(dairyCatalog())
	// Nothing in Dairy/Cheese matches "cream", the adjacency sibling does.
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Name: "cream", Category: "Dairy", SubCategory: "Cheese",
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(3), p.ID)
}

func TestResolve_ShopWideFallback(t *testing.T) {
	r := newResolver(dairyCatalog())
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Name: "chocolate", Category: "Dairy", SubCategory: "Milk",
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(4), p.ID)
}

func TestResolve_NoMatchReturnsNil(t *testing.T) {
	r := newResolver(dairyCatalog())
	p, err := r.Resolve(context.Background(), 1, ProductRequest{Name: "dragonfruit"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestResolve_ExcludeTokensFilter(t *testing.T) {
	r := newResolver(dairyCatalog())
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Name: "milk", Category: "Dairy", SubCategory: "Milk",
		ExcludeTokens: []string{"2%"},
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(2), p.ID)
}

func TestResolve_TaxonomyOnlyPicksNewest(t *testing.T) {
	c := dairyCatalog()
	c.products[1].UpdatedAt = time.Now() // Almond Milk updated last
	r := newResolver(c)
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Category: "Dairy", SubCategory: "Milk",
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(2), p.ID)
}

func TestResolve_TaxonomyOnlyExclusionScansWholeSlot(t *testing.T) {
	// The dozen newest products in the slot are all excluded; the single
	// older eligible one must still be found.
	base := time.Now().Add(-24 * time.Hour)
	c := &fakeCatalog{}
	c.products = append(c.products, catalog.Product{
		ID: 1, ShopID: 1, Name: "Whole Milk", Price: price("7.00"),
		Category: "Dairy", SubCategory: "Milk", UpdatedAt: base,
	})
	for i := int64(2); i <= 13; i++ {
		c.products = append(c.products, catalog.Product{
			ID: i, ShopID: 1, Name: "Diet Milk", Price: price("8.00"),
			Category: "Dairy", SubCategory: "Milk",
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	r := newResolver(c)
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Category: "Dairy", SubCategory: "Milk", ExcludeTokens: []string{"diet"},
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.ID)
}

func TestResolve_TaxonomyOnlyIncomplete(t *testing.T) {
	r := newResolver(dairyCatalog())
	p, err := r.Resolve(context.Background(), 1, ProductRequest{Category: "Dairy"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestResolve_DeterministicTieBreaks(t *testing.T) {
	c := &fakeCatalog{products: []catalog.Product{
		{ID: 10, ShopID: 1, Name: "Olive Oil", Price: price("20.00"), Category: "Pantry", SubCategory: "Oil"},
		{ID: 11, ShopID: 1, Name: "Olive Oil", Price: price("18.00"), Category: "Pantry", SubCategory: "Oil"},
		{ID: 12, ShopID: 1, Name: "Olive Oil", Price: price("18.00"), Category: "Pantry", SubCategory: "Oil"},
	}}
	r := newResolver(c)
	req := ProductRequest{Name: "olive oil", Category: "Pantry", SubCategory: "Oil"}
	for i := 0; i < 5; i++ {
		p, err := r.Resolve(context.Background(), 1, req)
		require.NoError(t, err)
		require.NotNil(t, p)
		// equal score and token count: cheaper wins, then highest id
		assert.Equal(t, int64(12), p.ID)
	}
}

func TestResolveBatch_IndexAlignment(t *testing.T) {
	r := newResolver(dairyCatalog())
	reqs := []ProductRequest{
		{Name: "milk", Category: "Dairy", SubCategory: "Milk"},
		{Name: "dragonfruit"},
		{Name: "chocolate"},
	}
	out, err := r.ResolveBatch(context.Background(), 1, reqs)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, m := range out.Found {
		assert.False(t, seen[m.Index])
		seen[m.Index] = true
	}
	for _, m := range out.NotFound {
		assert.False(t, seen[m.Index])
		seen[m.Index] = true
	}
	assert.Len(t, seen, len(reqs))
	require.Len(t, out.NotFound, 1)
	assert.Equal(t, 1, out.NotFound[0].Index)
}

func TestResolve_WeightsBiasRanking(t *testing.T) {
	c := &fakeCatalog{products: []catalog.Product{
		// Both match "yogurt"; the extra token "goat" is rare (high inv_df)
		// while "strawberry" is common (low inv_df).
		{ID: 20, ShopID: 1, Name: "Goat Yogurt", Price: price("8.00"), Category: "Dairy", SubCategory: "Yogurt"},
		{ID: 21, ShopID: 1, Name: "Strawberry Yogurt", Price: price("8.00"), Category: "Dairy", SubCategory: "Yogurt"},
	}}
	r := &Resolver{Catalog: c, Weights: fakeWeights{"goat": 1.0, "strawberry": 0.1}}
	p, err := r.Resolve(context.Background(), 1, ProductRequest{
		Name: "yogurt", Category: "Dairy", SubCategory: "Yogurt",
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(21), p.ID)
}
