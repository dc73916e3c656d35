package indexer

import (
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/tokenizer"
)

// Section multipliers applied to every occurrence of a term.
const (
	TitleWeight    = 10
	AbstractWeight = 5
	BodyWeight     = 1
)

// Analysis is the per-document work a worker can do without touching any
// shared state.
type Analysis struct {
	PaperID string
	// Terms lists each kept term once, in first-occurrence order.
	Terms   []string
	Weights map[string]int
	// Length counts every token of every section, numeric ones included.
	Length int
}

// Analyze tokenizes the title, abstract and body of rec separately and
// accumulates weighted term counts. Purely numeric terms are dropped.
func Analyze(rec *document.Record) Analysis {
	a := Analysis{
		PaperID: rec.PaperID,
		Weights: make(map[string]int),
	}
	sections := []struct {
		text   string
		weight int
	}{
		{rec.Metadata.Title, TitleWeight},
		{rec.AbstractText(), AbstractWeight},
		{rec.Body(), BodyWeight},
	}
	for _, s := range sections {
		tokens := tokenizer.Tokenize(s.text)
		a.Length += len(tokens)
		for _, t := range tokens {
			if tokenizer.IsNumeric(t) {
				continue
			}
			if _, seen := a.Weights[t]; !seen {
				a.Terms = append(a.Terms, t)
			}
			a.Weights[t] += s.weight
		}
	}
	return a
}
