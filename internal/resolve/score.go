package resolve

import (
	"sort"
	"strings"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

func invDF(weights map[string]float64, token string) float64 {
	if w, ok := weights[token]; ok {
		return w
	}
	// An unseen token is treated as maximally distinctive.
	return 1.0
}

// extraScore penalizes a candidate for every token in its name the request
// did not ask for. A product named exactly like the request scores 0; one
// carrying extra qualifiers scores higher and ranks worse.
func extraScore(nameTokens []string, requested map[string]struct{}, weights map[string]float64) float64 {
	var score float64
	for _, tok := range nameTokens {
		if _, asked := requested[tok]; asked {
			continue
		}
		score += invDF(weights, tok) * tokenize.Importance(tok)
	}
	return score
}

type rankedCandidate struct {
	product    catalog.Product
	score      float64
	tokenCount int
}

// rankBest orders candidates by ascending extraScore, then ascending price,
// then ascending token count, then descending id, and returns the winner.
func rankBest(candidates []catalog.Product, requestTokens []string, weights map[string]float64) catalog.Product {
	requested := make(map[string]struct{}, len(requestTokens))
	for _, t := range requestTokens {
		requested[t] = struct{}{}
	}
	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, p := range candidates {
		nameTokens := tokenize.Tokenize(p.Name)
		ranked = append(ranked, rankedCandidate{
			product:    p,
			score:      extraScore(nameTokens, requested, weights),
			tokenCount: len(nameTokens),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if c := a.product.Price.Cmp(b.product.Price); c != 0 {
			return c < 0
		}
		if a.tokenCount != b.tokenCount {
			return a.tokenCount < b.tokenCount
		}
		return a.product.ID > b.product.ID
	})
	return ranked[0].product
}

// excluded reports whether any exclude token appears as a substring of the
// product's name or display name, compared in normalized form.
func excluded(p catalog.Product, excludeTokens []string) bool {
	if len(excludeTokens) == 0 {
		return false
	}
	name := tokenize.Normalize(p.Name)
	display := tokenize.Normalize(p.DisplayNameEN)
	for _, raw := range excludeTokens {
		tok := tokenize.Normalize(raw)
		if tok == "" {
			continue
		}
		if strings.Contains(name, tok) || (display != "" && strings.Contains(display, tok)) {
			return true
		}
	}
	return false
}

func dropExcluded(candidates []catalog.Product, excludeTokens []string) []catalog.Product {
	if len(excludeTokens) == 0 {
		return candidates
	}
	kept := candidates[:0:0]
	for _, p := range candidates {
		if !excluded(p, excludeTokens) {
			kept = append(kept, p)
		}
	}
	return kept
}
