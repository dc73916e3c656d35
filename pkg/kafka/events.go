package kafka

import "time"

// IndexEvent announces that a document was added to the barrels. Searchers
// use the barrel lists to invalidate only the lexicon barrels that changed.
type IndexEvent struct {
	PaperID       string    `json:"paper_id"`
	TermsAdded    int       `json:"terms_added"`
	NewTerms      []string  `json:"new_terms,omitempty"`
	LexiconShards []int     `json:"lexicon_shards"`
	IndexShards   []int     `json:"index_shards"`
	IndexedAt     time.Time `json:"indexed_at"`
}
