package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"lowercases", "Sheathing NAILS", []string{"sheathing", "nails"}},
		{"drops stop words", "the nails of the roof", []string{"nails", "roof"}},
		{"splits punctuation", "30-100: framing", []string{"30", "100", "framing"}},
		{"dedupes", "nail nail NAIL", []string{"nail"}},
		{"folds width", "ＦＲＡＭＩＮＧ", []string{"framing"}},
		{"only stop words", "the and of", []string{}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, searchTerms(tt.query))
		})
	}
}

func TestLikePattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
	assert.Equal(t, `%c:\\d%`, likePattern(`c:\d`))
	assert.Equal(t, `30\_%`, prefixPattern("30_"))
}

func TestTermClause(t *testing.T) {
	clause, args := termClause("r.rule_text", []string{"nail", "roof"})
	assert.Equal(t, `(isms_fold(r.rule_text) LIKE ? ESCAPE '\' AND isms_fold(r.rule_text) LIKE ? ESCAPE '\')`, clause)
	assert.Equal(t, []any{"%nail%", "%roof%"}, args)

	clause, args = termClause("x", nil)
	assert.Empty(t, clause)
	assert.Nil(t, args)
}

func TestFoldText(t *testing.T) {
	assert.Equal(t, "élan", foldText("ÉLAN"))
	assert.Equal(t, "strasse", foldText("Straße"))
	assert.Equal(t, "framing", foldText("ＦＲＡＭＩＮＧ"))
}

func TestRank_PrefersDenseMatches(t *testing.T) {
	terms := []string{"nail"}
	short := rank("Nail it.", terms)
	long := rank("When you get to the end of the wall, remember to nail it.", terms)
	double := rank("Nail it, then nail it again.", terms)

	assert.Greater(t, short, long)
	assert.Greater(t, double, long)
	assert.Zero(t, rank("nothing here", terms))
	assert.Zero(t, rank("nail", nil))
}
