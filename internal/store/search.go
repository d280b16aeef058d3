package store

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// searchLimit caps the number of rows returned by any search.
const searchLimit = 100

// stopWords are dropped from queries, as an English full-text index would.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "if": true,
	"in": true, "into": true, "is": true, "it": true, "no": true, "not": true,
	"of": true, "on": true, "or": true, "so": true, "such": true, "that": true,
	"the": true, "their": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "to": true, "was": true, "will": true, "with": true,
}

// foldFunc is the SQL name of foldText, registered on every connection.
const foldFunc = "isms_fold"

// foldText normalizes and case-folds text for matching. Search compares
// folded column values against folded terms.
func foldText(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// searchTerms splits a free-text query into folded, de-duplicated terms with
// stop words removed. Every term must appear for a row to match.
func searchTerms(query string) []string {
	words := strings.FieldsFunc(foldText(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

// likePattern builds a LIKE pattern matching s anywhere, escaping wildcards
// with a backslash (used with ESCAPE '\').
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// prefixPattern builds a LIKE pattern matching values starting with s.
func prefixPattern(s string) string {
	return likeEscaper.Replace(s) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// foldedLike returns a LIKE comparison of the folded column.
func foldedLike(column string) string {
	return foldFunc + "(" + column + `) LIKE ? ESCAPE '\'`
}

// termClause returns a SQL fragment requiring every term to appear in the
// folded column, and the matching arguments. Returns an empty clause for no
// terms. Terms must already be folded.
func termClause(column string, terms []string) (string, []any) {
	if len(terms) == 0 {
		return "", nil
	}
	parts := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		parts[i] = foldedLike(column)
		args[i] = likePattern(t)
	}
	return "(" + strings.Join(parts, " AND ") + ")", args
}

// rank scores text against terms: occurrences of each term, dampened by
// document length so short precise matches outrank long incidental ones.
func rank(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	folded := foldText(text)
	var hits int
	for _, t := range terms {
		hits += strings.Count(folded, t)
	}
	if hits == 0 {
		return 0
	}
	words := len(strings.Fields(folded))
	return float64(hits) / (1 + math.Log(1+float64(words)))
}

// rankedRules sorts rules by rank descending, keeping the incoming order
// (phase sort order, rule number) for ties, and truncates to searchLimit.
func rankedRules(rules []Rule) []Rule {
	sort.SliceStable(rules, func(i, j int) bool {
		return *rules[i].Rank > *rules[j].Rank
	})
	if len(rules) > searchLimit {
		rules = rules[:searchLimit]
	}
	return rules
}
