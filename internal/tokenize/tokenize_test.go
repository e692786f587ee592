package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "latin with punctuation",
			in:   "2% Milk, 1L!",
			want: []string{"2", "milk", "1l"},
		},
		{
			name: "hebrew product name",
			in:   "חלב 3% ליטר",
			want: []string{"חלב", "3", "ליטר"},
		},
		{
			name: "apostrophes stripped not split",
			in:   "ben's cottage",
			want: []string{"bens", "cottage"},
		},
		{
			name: "geresh stripped",
			in:   "ג׳חנון",
			want: []string{"גחנון"},
		},
		{
			name: "noise dropped when others remain",
			in:   "regular milk",
			want: []string{"milk"},
		},
		{
			name: "hebrew noise dropped",
			in:   "לחם פשוט",
			want: []string{"לחם"},
		},
		{
			name: "all noise kept",
			in:   "regular רגיל",
			want: []string{"regular", "רגיל"},
		},
		{
			name: "single noise token kept",
			in:   "regular",
			want: []string{"regular"},
		},
		{
			name: "empty",
			in:   "  ",
			want: []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokenize(tc.in)
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "bens 2% milk", Normalize("Ben's 2% MILK"))
	// NFKC folds the fullwidth digit into its plain form.
	assert.Equal(t, "1l", Normalize("１L"))
}

func TestImportance(t *testing.T) {
	cases := []struct {
		token string
		want  float64
	}{
		{"2", 0.5},
		{"350", 0.5},
		{"1l", 0.7},
		{"3x250", 0.7},
		{"milk", 1.0},
		{"חלב", 1.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Importance(tc.token), "token %q", tc.token)
	}
}
