package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/tokenizer"
)

// QueryPlan is a tokenized query. Terms are distinct and keep the order in
// which they first appear.
type QueryPlan struct {
	Terms    []string
	RawQuery string
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]struct{})
	for _, term := range tokenizer.Tokenize(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}

// Empty reports whether no term survived tokenization.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Normalized is an order-independent form of the terms, used for cache keys.
func (p *QueryPlan) Normalized() string {
	terms := make([]string, len(p.Terms))
	copy(terms, p.Terms)
	sort.Strings(terms)
	return strings.Join(terms, ",")
}
