package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shukmarket/orders-backend/internal/tokenize"
)

func setupStore(t *testing.T) (*pgxpool.Pool, *Store, int64) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS product (
		id BIGSERIAL PRIMARY KEY,
		shop_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		display_name_en TEXT,
		price NUMERIC(10,2) NOT NULL,
		stock_amount NUMERIC(12,3),
		category TEXT NOT NULL DEFAULT '',
		sub_category TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	require.NoError(t, err)

	// unique shop per run keeps tests independent without truncation
	return pool, &Store{DB: pool}, time.Now().UnixNano()
}

func insertProduct(t *testing.T, pool *pgxpool.Pool, shopID int64, name, displayNameEN string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO product(shop_id, name, display_name_en, price, category, sub_category)
		 VALUES ($1,$2,NULLIF($3,''),5.00,'Snacks','Salty') RETURNING id`,
		shopID, name, displayNameEN).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestSearchContains_NormalizedStoredNames(t *testing.T) {
	pool, store, shopID := setupStore(t)
	ctx := context.Background()

	chips := insertProduct(t, pool, shopID, "צ'יפס תפוח אדמה", "")
	jachnun := insertProduct(t, pool, shopID, "ג׳חנון", "")
	cottage := insertProduct(t, pool, shopID, "Ben's Cottage", "")
	cola := insertProduct(t, pool, shopID, "Cola １L", "")

	cases := []struct {
		name  string
		query string
		want  int64
	}{
		// customers type without the apostrophe or geresh the catalog carries
		{"hebrew apostrophe", "ציפס", chips},
		{"hebrew geresh", "גחנון", jachnun},
		{"latin apostrophe", "bens cottage", cottage},
		{"fullwidth digit folded", "cola 1l", cola},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := tokenize.Tokenize(tc.query)
			require.NotEmpty(t, tokens)
			got, err := store.SearchContains(ctx, shopID, "", nil, tokens)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].ID)
		})
	}

	none, err := store.SearchContains(ctx, shopID, "", nil, tokenize.Tokenize("milk"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchContains_DisplayNameAlsoNormalized(t *testing.T) {
	pool, store, shopID := setupStore(t)
	ctx := context.Background()

	id := insertProduct(t, pool, shopID, "קוטג׳ 5%", "Ben's Cottage 5%")

	got, err := store.SearchContains(ctx, shopID, "", nil, tokenize.Tokenize("bens"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)

	got, err = store.SearchContains(ctx, shopID, "", nil, tokenize.Tokenize("קוטג"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestMostRecentIn_UnboundedWhenLimitNonPositive(t *testing.T) {
	pool, store, shopID := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		insertProduct(t, pool, shopID, "Diet Soda", "")
	}
	insertProduct(t, pool, shopID, "Plain Soda", "")

	page, err := store.MostRecentIn(ctx, shopID, "Snacks", "Salty", 10)
	require.NoError(t, err)
	assert.Len(t, page, 10)

	all, err := store.MostRecentIn(ctx, shopID, "Snacks", "Salty", 0)
	require.NoError(t, err)
	assert.Len(t, all, 13)
}
