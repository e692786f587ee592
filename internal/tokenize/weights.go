package tokenize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const insertChunk = 500

// WeightStore owns the product_token_weight table: full per-shop rebuilds and
// a read-through cache of the shop's token -> inv_df map. Values read between
// rebuilds may be stale; that is acceptable, scoring only needs rough
// distinctiveness.
type WeightStore struct {
	DB  *pgxpool.Pool
	Log *zap.SugaredLogger

	// CacheTTL bounds staleness of the in-process weight map. Zero means
	// a 1 minute default.
	CacheTTL time.Duration

	mu    sync.Mutex
	cache map[int64]cachedWeights
}

type cachedWeights struct {
	weights   map[string]float64
	fetchedAt time.Time
}

// Rebuild re-tokenizes every product name in the shop, counts per-token
// document frequency and replaces the shop's weight rows. Delete and insert
// run in one transaction so concurrent readers never observe a half-rebuilt
// table, and rerunning it is a no-op beyond fresh counts.
func (s *WeightStore) Rebuild(ctx context.Context, shopID int64) error {
	rows, err := s.DB.Query(ctx, `SELECT name FROM product WHERE shop_id=$1`, shopID)
	if err != nil {
		return fmt.Errorf("load product names: %w", err)
	}
	docFreq := map[string]int{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		seen := map[string]struct{}{}
		for _, tok := range Tokenize(name) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM product_token_weight WHERE shop_id=$1`, shopID); err != nil {
		return fmt.Errorf("clear token weights: %w", err)
	}

	type row struct {
		token string
		freq  int
	}
	pending := make([]row, 0, len(docFreq))
	for tok, n := range docFreq {
		pending = append(pending, row{token: tok, freq: n})
	}
	for start := 0; start < len(pending); start += insertChunk {
		end := start + insertChunk
		if end > len(pending) {
			end = len(pending)
		}
		b := &pgx.Batch{}
		for _, r := range pending[start:end] {
			b.Queue(`INSERT INTO product_token_weight(shop_id, token, doc_freq, inv_df)
			         VALUES ($1,$2,$3,$4)`,
				shopID, r.token, r.freq, 1.0/float64(r.freq))
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert token weights: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, shopID)
	s.mu.Unlock()

	if s.Log != nil {
		s.Log.Infow("token weights rebuilt", "shop_id", shopID, "tokens", len(pending))
	}
	return nil
}

// WeightsFor returns the shop's token -> inv_df map, served from the
// in-process cache when fresh. Tokens absent from the map score 1 (maximally
// distinctive), so callers can look up blindly.
func (s *WeightStore) WeightsFor(ctx context.Context, shopID int64) (map[string]float64, error) {
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	s.mu.Lock()
	if c, ok := s.cache[shopID]; ok && time.Since(c.fetchedAt) < ttl {
		s.mu.Unlock()
		return c.weights, nil
	}
	s.mu.Unlock()

	rows, err := s.DB.Query(ctx,
		`SELECT token, inv_df FROM product_token_weight WHERE shop_id=$1`, shopID)
	if err != nil {
		return nil, fmt.Errorf("load token weights: %w", err)
	}
	defer rows.Close()

	weights := map[string]float64{}
	for rows.Next() {
		var tok string
		var w float64
		if err := rows.Scan(&tok, &w); err != nil {
			return nil, err
		}
		weights[tok] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cache == nil {
		s.cache = map[int64]cachedWeights{}
	}
	s.cache[shopID] = cachedWeights{weights: weights, fetchedAt: time.Now()}
	s.mu.Unlock()

	return weights, nil
}
