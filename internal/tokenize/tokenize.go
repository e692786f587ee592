package tokenize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// splitRe matches every run of characters that is neither a word character
// nor inside the Hebrew block. Product names mix Hebrew and Latin script.
var splitRe = regexp.MustCompile(`[^0-9A-Za-z_\x{0590}-\x{05FF}]+`)

var apostropheReplacer = strings.NewReplacer(
	"'", "",
	"’", "",
	"׳", "", // geresh
	"״", "", // gershayim
	"`", "",
)

// noiseTokens are size/plainness adjectives that customers attach to product
// names ("regular milk", "small cottage") but catalogs rarely carry.
var noiseTokens = map[string]struct{}{
	"regular":  {},
	"normal":   {},
	"standard": {},
	"plain":    {},
	"small":    {},
	"big":      {},
	"large":    {},
	"medium":   {},
	"רגיל":     {},
	"רגילה":    {},
	"פשוט":     {},
	"פשוטה":    {},
	"קטן":      {},
	"קטנה":     {},
	"גדול":     {},
	"גדולה":    {},
	"בינוני":   {},
	"בינונית":  {},
}

// Normalize folds text into the canonical form used everywhere tokens or
// substrings are compared: NFKC, apostrophes stripped, lower-cased.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = apostropheReplacer.Replace(s)
	return strings.ToLower(s)
}

// Tokenize splits free text into normalized tokens. When more than one token
// survives the split, noise adjectives are dropped, unless that would leave
// nothing (a query that is nothing but "regular" still has to match on it).
func Tokenize(text string) []string {
	fields := splitRe.Split(Normalize(text), -1)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	if len(tokens) <= 1 {
		return tokens
	}
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, noise := noiseTokens[t]; !noise {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return tokens
	}
	return kept
}

// Importance weights a token's contribution to match scoring. Pure numbers
// are quantities or sizes and discriminate poorly; mixed alphanumerics
// ("1l", "3.5") are somewhere in between.
func Importance(token string) float64 {
	hasDigit := false
	allDigit := true
	for _, r := range token {
		if r >= '0' && r <= '9' {
			hasDigit = true
		} else {
			allDigit = false
		}
	}
	switch {
	case allDigit && len(token) > 0:
		return 0.5
	case hasDigit:
		return 0.7
	default:
		return 1.0
	}
}
