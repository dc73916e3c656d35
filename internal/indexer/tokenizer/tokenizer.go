// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input, splits on anything that is not an ASCII letter or
// digit, removes English stop-words, and applies the Snowball (Porter2)
// English stemmer to every remaining fragment.
//
// Porter2 stems some words differently from the original Porter algorithm
// ("generously" is "generous" here, "gener" under Porter), so barrels built
// by Porter-based tools are not stem-compatible with these.
package tokenizer

import (
	"strings"

	snowballeng "github.com/kljensen/snowball/english"
)

// stopWords is the standard English stop-word list used by NLTK.
var stopWords = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "our": {}, "ours": {},
	"ourselves": {}, "you": {}, "you're": {}, "you've": {}, "you'll": {}, "you'd": {},
	"your": {}, "yours": {}, "yourself": {}, "yourselves": {}, "he": {}, "him": {},
	"his": {}, "himself": {}, "she": {}, "she's": {}, "her": {}, "hers": {},
	"herself": {}, "it": {}, "it's": {}, "its": {}, "itself": {}, "they": {},
	"them": {}, "their": {}, "theirs": {}, "themselves": {}, "what": {}, "which": {},
	"who": {}, "whom": {}, "this": {}, "that": {}, "that'll": {}, "these": {},
	"those": {}, "am": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "have": {}, "has": {}, "had": {}, "having": {}, "do": {},
	"does": {}, "did": {}, "doing": {}, "a": {}, "an": {}, "the": {}, "and": {},
	"but": {}, "if": {}, "or": {}, "because": {}, "as": {}, "until": {}, "while": {},
	"of": {}, "at": {}, "by": {}, "for": {}, "with": {}, "about": {}, "against": {},
	"between": {}, "into": {}, "through": {}, "during": {}, "before": {}, "after": {},
	"above": {}, "below": {}, "to": {}, "from": {}, "up": {}, "down": {}, "in": {},
	"out": {}, "on": {}, "off": {}, "over": {}, "under": {}, "again": {},
	"further": {}, "then": {}, "once": {}, "here": {}, "there": {}, "when": {},
	"where": {}, "why": {}, "how": {}, "all": {}, "any": {}, "both": {}, "each": {},
	"few": {}, "more": {}, "most": {}, "other": {}, "some": {}, "such": {}, "no": {},
	"nor": {}, "not": {}, "only": {}, "own": {}, "same": {}, "so": {}, "than": {},
	"too": {}, "very": {}, "s": {}, "t": {}, "can": {}, "will": {}, "just": {},
	"don": {}, "don't": {}, "should": {}, "should've": {}, "now": {}, "d": {},
	"ll": {}, "m": {}, "o": {}, "re": {}, "ve": {}, "y": {}, "ain": {}, "aren": {},
	"aren't": {}, "couldn": {}, "couldn't": {}, "didn": {}, "didn't": {}, "doesn": {},
	"doesn't": {}, "hadn": {}, "hadn't": {}, "hasn": {}, "hasn't": {}, "haven": {},
	"haven't": {}, "isn": {}, "isn't": {}, "ma": {}, "mightn": {}, "mightn't": {},
	"mustn": {}, "mustn't": {}, "needn": {}, "needn't": {}, "shan": {}, "shan't": {},
	"shouldn": {}, "shouldn't": {}, "wasn": {}, "wasn't": {}, "weren": {},
	"weren't": {}, "won": {}, "won't": {}, "wouldn": {}, "wouldn't": {},
}

// Tokenize breaks text into stemmed, lowercased terms with stop-words
// removed. Order follows the input and duplicates are kept.
func Tokenize(text string) []string {
	words := split(strings.ToLower(text))
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if IsStopWord(word) {
			continue
		}
		stemmed := snowballeng.Stem(word, false)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// IsStopWord reports whether the lowercased word is dropped by Tokenize.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// IsNumeric reports whether term consists only of ASCII digits. The indexer
// never stores such terms.
func IsNumeric(term string) bool {
	if term == "" {
		return false
	}
	for i := 0; i < len(term); i++ {
		if term[i] < '0' || term[i] > '9' {
			return false
		}
	}
	return true
}

// split returns the maximal runs of [a-z0-9] in text. Any other byte,
// including every byte of a multi-byte rune, is a separator.
func split(text string) []string {
	words := make([]string, 0, len(text)/6)
	start := -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}
