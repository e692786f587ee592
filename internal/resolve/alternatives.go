package resolve

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

// candidateFetch bounds how many rows a substitution search pulls before
// scoring in memory.
const candidateFetch = 50

// Finder proposes substitute products for a taxonomy slot. An empty result
// is a normal outcome, never an error; the caller turns it into a
// clarification question.
type Finder struct {
	Catalog Catalog
	Log     *zap.SugaredLogger
}

// Find returns up to limit substitutes for (category, sub_category),
// excluding ids already offered and anything matching an exclude token. With
// reference text, candidates are scored by the importance-weighted fraction
// of reference tokens their name contains; without it, storage order stands.
func (f *Finder) Find(ctx context.Context, shopID int64, category, subCategory string, excludeIDs []int64, limit int, referenceText string, excludeTokens []string) ([]catalog.Product, error) {
	if category == "" && subCategory == "" {
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	var subs []string
	if subCategory != "" {
		if category != "" {
			group, err := f.Catalog.AdjacencyGroup(ctx, category, subCategory)
			if err != nil {
				return nil, err
			}
			subs = group
		} else {
			subs = []string{subCategory}
		}
	}

	candidates, err := f.Catalog.ListForAlternatives(ctx, shopID, category, subs, excludeIDs, candidateFetch)
	if err != nil {
		return nil, err
	}
	candidates = dropExcluded(candidates, excludeTokens)
	if len(candidates) == 0 {
		return nil, nil
	}

	refTokens := tokenize.Tokenize(referenceText)
	if len(refTokens) == 0 {
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates, nil
	}

	var totalImportance float64
	for _, t := range refTokens {
		totalImportance += tokenize.Importance(t)
	}

	type scored struct {
		product catalog.Product
		score   float64
	}
	var positives []scored
	var zeros []catalog.Product
	for _, p := range candidates {
		name := tokenize.Normalize(p.Name)
		var hit float64
		for _, t := range refTokens {
			if strings.Contains(name, t) {
				hit += tokenize.Importance(t)
			}
		}
		if hit > 0 {
			positives = append(positives, scored{product: p, score: hit / totalImportance})
		} else {
			zeros = append(zeros, p)
		}
	}

	sort.Slice(positives, func(i, j int) bool {
		a, b := positives[i], positives[j]
		if a.score != b.score {
			return a.score > b.score
		}
		aExact := a.product.SubCategory == subCategory
		bExact := b.product.SubCategory == subCategory
		if aExact != bExact {
			return aExact
		}
		if la, lb := len(a.product.Name), len(b.product.Name); la != lb {
			return la < lb
		}
		return a.product.ID < b.product.ID
	})

	out := make([]catalog.Product, 0, limit)
	for _, s := range positives {
		if len(out) == limit {
			return out, nil
		}
		out = append(out, s.product)
	}
	// Pad with unscored candidates in storage order when too few positives.
	for _, p := range zeros {
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

// BuildQuestions assembles one follow-up question per miss, tracking already
// offered product ids across the batch so the same substitute is never
// proposed twice in a turn. The returned map is keyed by the original
// request index.
func (f *Finder) BuildQuestions(ctx context.Context, shopID int64, misses []Miss, limit int, alreadyOffered []int64) ([]AltQuestion, map[int][]catalog.Product, error) {
	offered := append([]int64(nil), alreadyOffered...)
	questions := make([]AltQuestion, 0, len(misses))
	byIndex := make(map[int][]catalog.Product, len(misses))

	for _, m := range misses {
		alts, err := f.Find(ctx, shopID, m.Request.Category, m.Request.SubCategory,
			offered, limit, m.Request.SearchText(), m.Request.ExcludeTokens)
		if err != nil {
			return nil, nil, err
		}
		q := AltQuestion{Index: m.Index, Prompt: m.Request.DisplayName()}
		for _, p := range alts {
			q.Options = append(q.Options, p.Name)
			offered = append(offered, p.ID)
		}
		questions = append(questions, q)
		byIndex[m.Index] = alts
	}
	return questions, byIndex, nil
}
