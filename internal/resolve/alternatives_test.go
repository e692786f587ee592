package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shukmarket/orders-backend/internal/catalog"
)

func altCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: []catalog.Product{
			{ID: 1, ShopID: 1, Name: "2% Milk 1L", Price: price("6.90"), Category: "Dairy", SubCategory: "Milk"},
			{ID: 2, ShopID: 1, Name: "Almond Milk 1L", Price: price("12.50"), Category: "Dairy", SubCategory: "Milk"},
			{ID: 3, ShopID: 1, Name: "Soy Milk", Price: price("10.00"), Category: "Dairy", SubCategory: "Milk"},
			{ID: 4, ShopID: 1, Name: "Butter", Price: price("7.00"), Category: "Dairy", SubCategory: "Milk"},
		},
	}
}

func TestFind_RequiresTaxonomy(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	alts, err := f.Find(context.Background(), 1, "", "", nil, 3, "milk", nil)
	require.NoError(t, err)
	assert.Empty(t, alts)
}

func TestFind_ReferenceScoringAndPadding(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	alts, err := f.Find(context.Background(), 1, "Dairy", "Milk", []int64{1}, 3, "2% Milk 1L", nil)
	require.NoError(t, err)
	require.Len(t, alts, 3)
	// Almond Milk 1L contains "milk" and "1l"; Soy Milk only "milk";
	// Butter scores zero and only pads the tail.
	assert.Equal(t, int64(2), alts[0].ID)
	assert.Equal(t, int64(3), alts[1].ID)
	assert.Equal(t, int64(4), alts[2].ID)
}

func TestFind_ExcludeIDs(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	alts, err := f.Find(context.Background(), 1, "Dairy", "Milk", []int64{1, 2}, 5, "", nil)
	require.NoError(t, err)
	for _, p := range alts {
		assert.NotContains(t, []int64{1, 2}, p.ID)
	}
}

func TestFind_ExcludeTokens(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	alts, err := f.Find(context.Background(), 1, "Dairy", "Milk", nil, 5, "milk", []string{"almond"})
	require.NoError(t, err)
	for _, p := range alts {
		assert.NotEqual(t, int64(2), p.ID)
	}
}

func TestFind_NoReferenceKeepsStorageOrder(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	alts, err := f.Find(context.Background(), 1, "Dairy", "Milk", nil, 2, "", nil)
	require.NoError(t, err)
	require.Len(t, alts, 2)
	assert.Equal(t, int64(1), alts[0].ID)
	assert.Equal(t, int64(2), alts[1].ID)
}

func TestBuildQuestions_NeverRepeatsAnOffer(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	misses := []Miss{
		{Index: 0, Request: ProductRequest{Name: "oat milk", Category: "Dairy", SubCategory: "Milk"}},
		{Index: 2, Request: ProductRequest{Name: "coconut milk", Category: "Dairy", SubCategory: "Milk"}},
	}
	questions, byIndex, err := f.BuildQuestions(context.Background(), 1, misses, 2, nil)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, 0, questions[0].Index)
	assert.Equal(t, 2, questions[1].Index)

	seen := map[int64]bool{}
	for _, alts := range byIndex {
		for _, p := range alts {
			assert.False(t, seen[p.ID], "product %d offered twice", p.ID)
			seen[p.ID] = true
		}
	}
}

func TestBuildQuestions_EmptyOptionsStillAsks(t *testing.T) {
	f := &Finder{Catalog: altCatalog()}
	misses := []Miss{{Index: 0, Request: ProductRequest{Name: "screwdriver", Category: "Hardware", SubCategory: "Tools"}}}
	questions, byIndex, err := f.BuildQuestions(context.Background(), 1, misses, 3, nil)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Empty(t, questions[0].Options)
	assert.Empty(t, byIndex[0])
	assert.Equal(t, "screwdriver", questions[0].Prompt)
}
