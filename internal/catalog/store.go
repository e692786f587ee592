package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const productColumns = `id, shop_id, name, COALESCE(display_name_en,''), price,
	stock_amount, category, sub_category, created_at, updated_at`

// Store is the catalog read/write layer. All product access goes through it;
// it is the only component allowed to touch stock_amount SQL.
type Store struct {
	DB  *pgxpool.Pool
	Log *zap.SugaredLogger

	adjacency adjacencyCache
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.DisplayNameEN, &p.Price,
		&p.StockAmount, &p.Category, &p.SubCategory, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// likePattern escapes LIKE metacharacters so a token is matched literally.
func likePattern(token string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(token) + "%"
}

// nameStripSet holds the apostrophe-like characters the tokenizer removes;
// it must stay in sync with tokenize.Normalize.
const nameStripSet = "'’׳״`"

// SearchContains returns products whose name or English display name
// contains every token as a substring. Tokens arrive already normalized, so
// the stored names are folded the same way inside SQL (NFKC via normalize(),
// apostrophes and geresh stripped via translate(), case via ILIKE) before
// comparison: a customer typing ציפס must find a product named צ'יפס. An
// empty category widens the search to the whole shop; otherwise
// subCategories narrows it (one entry for an exact-sub-category search,
// several for an adjacency group).
func (s *Store) SearchContains(ctx context.Context, shopID int64, category string, subCategories, tokens []string) ([]Product, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	args := []any{shopID, nameStripSet}
	fmt.Fprintf(&sb, `SELECT %s FROM product WHERE shop_id=$1`, productColumns)
	if category != "" {
		args = append(args, category)
		fmt.Fprintf(&sb, ` AND category=$%d`, len(args))
		if len(subCategories) > 0 {
			args = append(args, subCategories)
			fmt.Fprintf(&sb, ` AND sub_category = ANY($%d)`, len(args))
		}
	}
	for _, tok := range tokens {
		args = append(args, likePattern(tok))
		n := len(args)
		fmt.Fprintf(&sb,
			` AND (translate(normalize(name, NFKC), $2, '') ILIKE $%d OR translate(normalize(display_name_en, NFKC), $2, '') ILIKE $%d)`,
			n, n)
	}
	sb.WriteString(` ORDER BY id`)

	rows, err := s.DB.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return collectProducts(rows)
}

// MostRecentIn lists products of an exact (category, sub_category) newest
// first, ties broken by highest id. A limit <= 0 lists the whole slot. Used
// when a request carries a taxonomy but no usable name tokens.
func (s *Store) MostRecentIn(ctx context.Context, shopID int64, category, subCategory string, limit int) ([]Product, error) {
	q := fmt.Sprintf(
		`SELECT %s FROM product
		 WHERE shop_id=$1 AND category=$2 AND sub_category=$3
		 ORDER BY updated_at DESC, id DESC`, productColumns)
	args := []any{shopID, category, subCategory}
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT $4`
	}
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("most recent in sub-category: %w", err)
	}
	return collectProducts(rows)
}

// ListForAlternatives fetches substitution candidates in storage (id) order.
// subCategories may be empty, which lists the whole category.
func (s *Store) ListForAlternatives(ctx context.Context, shopID int64, category string, subCategories []string, excludeIDs []int64, limit int) ([]Product, error) {
	var sb strings.Builder
	args := []any{shopID}
	fmt.Fprintf(&sb, `SELECT %s FROM product WHERE shop_id=$1`, productColumns)
	if category != "" {
		args = append(args, category)
		fmt.Fprintf(&sb, ` AND category=$%d`, len(args))
	}
	if len(subCategories) > 0 {
		args = append(args, subCategories)
		fmt.Fprintf(&sb, ` AND sub_category = ANY($%d)`, len(args))
	}
	if len(excludeIDs) > 0 {
		args = append(args, excludeIDs)
		fmt.Fprintf(&sb, ` AND NOT (id = ANY($%d))`, len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, ` ORDER BY id LIMIT $%d`, len(args))

	rows, err := s.DB.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list alternatives: %w", err)
	}
	return collectProducts(rows)
}

// LockProducts takes FOR UPDATE locks on the given product rows in ascending
// id order. Every reservation path locks through here so concurrent
// transactions acquire product locks in the same order.
func (s *Store) LockProducts(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]Product, error) {
	if len(ids) == 0 {
		return map[int64]Product{}, nil
	}
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM product WHERE id = ANY($1) ORDER BY id FOR UPDATE`, productColumns),
		sorted)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	locked, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Product, len(locked))
	for _, p := range locked {
		out[p.ID] = p
	}
	return out, nil
}

// AdjustStock applies a stock delta as a single atomic SQL update. Rows with
// NULL stock (unlimited) are untouched. The caller must already hold the
// row's FOR UPDATE lock.
func (s *Store) AdjustStock(ctx context.Context, tx pgx.Tx, productID int64, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	_, err := tx.Exec(ctx,
		`UPDATE product SET stock_amount = stock_amount + $2, updated_at = now()
		 WHERE id=$1 AND stock_amount IS NOT NULL`,
		productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock for product %d: %w", productID, err)
	}
	return nil
}
