package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/index"
)

const (
	k1 = 1.5
	b  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
}

// WeightedTerm is a resolved query term with its query weight: 1.0 for
// terms typed by the user, similarity*semantic_weight for expansions.
type WeightedTerm struct {
	Term     string
	TermID   int
	Weight   float64
	Postings index.PostingList
}

// DocLength returns a document's stored length, reporting false when the
// corpus statistics do not know it.
type DocLength func(docID string) (int, bool)

// Rank accumulates weighted BM25 per document and returns the documents
// sorted by score. Unknown document lengths fall back to the average.
func Rank(terms []WeightedTerm, params RankParams, docLength DocLength) []ScoredDoc {
	scores := make(map[string]float64)
	order := make([]string, 0)
	for _, term := range terms {
		docFreq := int64(len(term.Postings))
		if docFreq == 0 || term.Weight == 0 {
			continue
		}
		idf := IDF(params.TotalDocs, docFreq)
		for _, posting := range term.Postings {
			dl := params.AvgDocLength
			if docLength != nil {
				if n, ok := docLength(posting.DocID); ok {
					dl = float64(n)
				}
			}
			if _, seen := scores[posting.DocID]; !seen {
				order = append(order, posting.DocID)
			}
			scores[posting.DocID] += idf * computeTFNorm(float64(posting.Count), dl, params.AvgDocLength) * term.Weight
		}
	}
	result := make([]ScoredDoc, 0, len(order))
	for _, docID := range order {
		result = append(result, ScoredDoc{DocID: docID, Score: scores[docID]})
	}
	Sort(result)
	return result
}

// Sort orders docs by score descending, then by DocID.
func Sort(docs []ScoredDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}

// IDF is the BM25 inverse document frequency with the +1 shift, so it stays
// positive even for terms in more than half the corpus.
func IDF(totalDocs, docFreq int64) float64 {
	if docFreq > totalDocs {
		totalDocs = docFreq
	}
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// Score is the BM25 contribution of a single term to a single document.
func Score(termFreq float64, docFreq, totalDocs int64, docLength, avgDocLength float64) float64 {
	return IDF(totalDocs, docFreq) * computeTFNorm(termFreq, docLength, avgDocLength)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
