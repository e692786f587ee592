package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

// Resolver maps one product request to the single best catalog row, or nil
// when nothing matches. Matching is substring containment plus an extra-token
// penalty; no semantic similarity, so results are explainable and repeatable.
type Resolver struct {
	Catalog Catalog
	Weights WeightSource
	Log     *zap.SugaredLogger
}

// Resolve runs a cascade of widening search tiers: exact sub-category, the
// sub-category's adjacency group, then the whole shop. The first tier with a
// surviving candidate wins and its best-ranked product is returned.
func (r *Resolver) Resolve(ctx context.Context, shopID int64, req ProductRequest) (*catalog.Product, error) {
	tokens := tokenize.Tokenize(req.SearchText())

	if len(tokens) == 0 {
		return r.resolveByTaxonomy(ctx, shopID, req)
	}

	haveTaxonomy := req.Category != "" && req.SubCategory != ""

	type tier func(ctx context.Context) ([]catalog.Product, error)
	var tiers []tier
	if haveTaxonomy {
		tiers = append(tiers,
			func(ctx context.Context) ([]catalog.Product, error) {
				return r.Catalog.SearchContains(ctx, shopID, req.Category, []string{req.SubCategory}, tokens)
			},
			func(ctx context.Context) ([]catalog.Product, error) {
				group, err := r.Catalog.AdjacencyGroup(ctx, req.Category, req.SubCategory)
				if err != nil {
					return nil, err
				}
				siblings := make([]string, 0, len(group))
				for _, sub := range group {
					if sub != req.SubCategory {
						siblings = append(siblings, sub)
					}
				}
				if len(siblings) == 0 {
					return nil, nil
				}
				return r.Catalog.SearchContains(ctx, shopID, req.Category, siblings, tokens)
			},
		)
	}
	tiers = append(tiers, func(ctx context.Context) ([]catalog.Product, error) {
		return r.Catalog.SearchContains(ctx, shopID, "", nil, tokens)
	})

	for _, t := range tiers {
		candidates, err := t(ctx)
		if err != nil {
			return nil, err
		}
		candidates = dropExcluded(candidates, req.ExcludeTokens)
		if len(candidates) == 0 {
			continue
		}
		weights, err := r.Weights.WeightsFor(ctx, shopID)
		if err != nil {
			return nil, err
		}
		best := rankBest(candidates, tokens, weights)
		return &best, nil
	}
	return nil, nil
}

// resolveByTaxonomy handles requests with no usable name tokens: with both
// category and sub-category present the newest product there stands in,
// otherwise there is nothing to go on.
func (r *Resolver) resolveByTaxonomy(ctx context.Context, shopID int64, req ProductRequest) (*catalog.Product, error) {
	if req.Category == "" || req.SubCategory == "" {
		return nil, nil
	}
	limit := 1
	if len(req.ExcludeTokens) > 0 {
		// Exclusion can veto any prefix of the newest-first list, so scan
		// the whole slot rather than a fixed page.
		limit = 0
	}
	candidates, err := r.Catalog.MostRecentIn(ctx, shopID, req.Category, req.SubCategory, limit)
	if err != nil {
		return nil, err
	}
	candidates = dropExcluded(candidates, req.ExcludeTokens)
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// ResolveBatch resolves every request, preserving input order: each index
// 0..len(reqs)-1 lands in exactly one of Found or NotFound.
func (r *Resolver) ResolveBatch(ctx context.Context, shopID int64, reqs []ProductRequest) (BatchResult, error) {
	var out BatchResult
	for i, req := range reqs {
		p, err := r.Resolve(ctx, shopID, req)
		if err != nil {
			return BatchResult{}, err
		}
		if p == nil {
			out.NotFound = append(out.NotFound, Miss{Index: i, Request: req})
			continue
		}
		out.Found = append(out.Found, Match{Index: i, Product: *p, Request: req})
	}
	return out, nil
}
