// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		valid bool
	}{
		{"grouped OR", "([term a] OR [term b])", true},
		{"unclosed group", "([term a] OR [term b]", false},
		{"flat OR", "[term a] OR [term b]", true},
		{"bare text before term", "term a OR [term b]", false},
		{"adjacent without connector", "term a [term b]", false},
		{"empty term", "[] AND [term b]", false},
		{"single term", "[term a]", true},
		{"only empty term", "[]", false},
		{"open bracket", "[", false},
		{"and not", "[term a] AND NOT [term b]", true},
		{"lowercase connector", "[term a] or [term b]", false},
		{"nested groups", "([a] AND ([b] OR [c]))", true},
		{"trailing text", "[term a] AND", false},
		{"unterminated term", "[term a] AND [term b", false},
		{"crossed parens", ")[term a](", false},
		{"connector split by group", "[term a] O(R) [term b]", false},
		{"adjacent terms", "[term a][term b]", false},
		{"adjacent groups", "([term a])([term b])", false},
		{"connector before group", "[term a] AND NOT ([term b] OR [term c])", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var mqe *MalformedQueryError
			assert.ErrorAs(t, err, &mqe)
			assert.Equal(t, tt.query, mqe.Query)
		})
	}
}

func TestApplyToTerms(t *testing.T) {
	got := ApplyToTerms("[term a] AND ([term b] OR [c])", func(term string) string {
		return strings.ReplaceAll(term, " ", "+")
	})
	assert.Equal(t, "[term+a] AND ([term+b] OR [c])", got)
}

func TestApplyToTerms_ConnectorsUntouched(t *testing.T) {
	got := ApplyToTerms("[a b] AND NOT [c d]", strings.ToUpper)
	assert.Equal(t, "[A B] AND NOT [C D]", got)
}

func TestRewriteEnclosures(t *testing.T) {
	got := RewriteEnclosures("[heart attack] OR [stroke]", `"`, `"[TIAB]`)
	assert.Equal(t, `"heart attack"[TIAB] OR "stroke"[TIAB]`, got)
}
