package document

import (
	"sort"
	"strconv"
	"strings"
)

const (
	summaryAuthors   = 3
	bodyPreviewChars = 300
)

// Summary is the presentation view of a search hit.
type Summary struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Authors  string  `json:"authors"`
	Abstract string  `json:"abstract"`
	Score    float64 `json:"score"`
	URL      string  `json:"url"`
	DocName  string  `json:"doc_name"`
}

// Summarize builds the result card for rec.
func Summarize(rec *Record) Summary {
	title := rec.Metadata.Title
	if title == "" {
		title = "Untitled Document"
	}
	return Summary{
		ID:       rec.PaperID,
		Title:    title,
		Authors:  authorLine(rec.Metadata.Authors),
		Abstract: preview(rec),
		URL:      PaperURL(rec),
		DocName:  rec.PaperID,
	}
}

func authorLine(authors []Author) string {
	names := make([]string, 0, summaryAuthors)
	for i, a := range authors {
		if i == summaryAuthors {
			break
		}
		switch {
		case a.First != "" && a.Last != "":
			names = append(names, a.First+" "+a.Last)
		case a.Last != "":
			names = append(names, a.Last)
		}
	}
	line := strings.Join(names, ", ")
	if len(authors) > summaryAuthors {
		line += ", et al."
	}
	if line == "" {
		return "Unknown Authors"
	}
	return line
}

func preview(rec *Record) string {
	if len(rec.Abstract) > 0 && rec.Abstract[0].Text != "" {
		return rec.Abstract[0].Text
	}
	if len(rec.BodyText) > 0 {
		text := rec.BodyText[0].Text
		if len(text) > bodyPreviewChars {
			text = truncateRunes(text, bodyPreviewChars)
		}
		return text + "..."
	}
	return ""
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

// PaperURL returns the record's own URL, a PubMed Central link for PMC ids
// or a Semantic Scholar link otherwise.
func PaperURL(rec *Record) string {
	if rec.URL != "" {
		return rec.URL
	}
	if strings.HasPrefix(rec.PaperID, "PMC") {
		return "https://www.ncbi.nlm.nih.gov/pmc/articles/" + rec.PaperID + "/"
	}
	return "https://www.semanticscholar.org/paper/" + rec.PaperID
}

// Reference is one bibliography entry labelled with the number it is cited
// by in the text.
type Reference struct {
	RefID   string `json:"ref_id"`
	Number  string `json:"number"`
	Authors string `json:"authors"`
	Year    int    `json:"year,omitempty"`
	Title   string `json:"title"`
	Venue   string `json:"venue,omitempty"`
}

// References lists the bibliography in citation order. Entries are numbered
// by their first in-text marker ("[3]" becomes "3"); entries that are never
// cited keep their ref id and sort by its BIBREF number.
func References(rec *Record) []Reference {
	if len(rec.BibEntries) == 0 {
		return nil
	}
	numbers := make(map[string]string)
	for _, ps := range [][]Paragraph{rec.Abstract, rec.BodyText} {
		for _, p := range ps {
			for _, c := range p.CiteSpans {
				marker := strings.Trim(strings.TrimSpace(c.Marker()), "[]")
				if c.RefID == "" || marker == "" {
					continue
				}
				if _, ok := numbers[c.RefID]; !ok {
					numbers[c.RefID] = marker
				}
			}
		}
	}

	refs := make([]Reference, 0, len(rec.BibEntries))
	for refID, entry := range rec.BibEntries {
		number, ok := numbers[refID]
		if !ok {
			number = refID
		}
		title := entry.Title
		if title == "" {
			title = "No title"
		}
		refs = append(refs, Reference{
			RefID:   refID,
			Number:  number,
			Authors: bibAuthorLine(entry.Authors),
			Year:    entry.Year,
			Title:   title,
			Venue:   entry.Venue,
		})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		ki, kj := referenceKey(refs[i]), referenceKey(refs[j])
		if ki != kj {
			return ki < kj
		}
		return refs[i].RefID < refs[j].RefID
	})
	return refs
}

func referenceKey(r Reference) int {
	if n, err := strconv.Atoi(r.Number); err == nil {
		return n
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(r.RefID, "BIBREF")); err == nil {
		return n
	}
	return 999
}

func bibAuthorLine(authors []BibAuthor) string {
	switch {
	case len(authors) == 0:
		return "Unknown"
	case len(authors) > summaryAuthors:
		return authors[0].Last + " et al."
	}
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.Last
	}
	return strings.Join(names, ", ")
}
