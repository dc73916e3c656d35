// Package document defines the paper record read by the indexer and the
// JSON document store that serves it back for presentation.
package document

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
)

// Record is one paper in the corpus JSON layout.
type Record struct {
	PaperID    string              `json:"paper_id"`
	Metadata   Metadata            `json:"metadata"`
	Abstract   []Paragraph         `json:"abstract"`
	BodyText   []Paragraph         `json:"body_text"`
	BibEntries map[string]BibEntry `json:"bib_entries,omitempty"`
	URL        string              `json:"url,omitempty"`
}

type Metadata struct {
	Title   string   `json:"title"`
	Authors []Author `json:"authors"`
}

type Author struct {
	First  string   `json:"first"`
	Middle []string `json:"middle"`
	Last   string   `json:"last"`
	Suffix string   `json:"suffix,omitempty"`
}

// FullName joins first, middle and last names.
func (a Author) FullName() string {
	parts := make([]string, 0, 2+len(a.Middle))
	for _, p := range append(append([]string{a.First}, a.Middle...), a.Last) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type Paragraph struct {
	Text      string     `json:"text"`
	Section   string     `json:"section"`
	CiteSpans []CiteSpan `json:"cite_spans"`
}

// CiteSpan marks a citation inside a paragraph. Older records carry the
// visible marker in "mention" instead of "text".
type CiteSpan struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
	Mention string `json:"mention,omitempty"`
	RefID   string `json:"ref_id"`
}

// Marker returns the citation text as shown in the paragraph.
func (c CiteSpan) Marker() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Mention
}

type BibEntry struct {
	RefID   string      `json:"ref_id"`
	Title   string      `json:"title"`
	Authors []BibAuthor `json:"authors"`
	Year    int         `json:"year,omitempty"`
	Venue   string      `json:"venue"`
}

type BibAuthor struct {
	First  string   `json:"first"`
	Middle []string `json:"middle"`
	Last   string   `json:"last"`
}

// Parse decodes a record and defaults a missing paper_id to the source file
// name without its extensions.
func Parse(data []byte, sourceFilename string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedRecord, http.StatusBadRequest,
			"decoding %s: %v", sourceFilename, err)
	}
	rec.PaperID = strings.TrimSpace(rec.PaperID)
	if rec.PaperID == "" {
		rec.PaperID = IDFromFilename(sourceFilename)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Validate checks the fields the indexer depends on.
func (r *Record) Validate() error {
	if r.PaperID == "" {
		return apperrors.New(apperrors.ErrMalformedRecord, http.StatusBadRequest, "record has no paper_id")
	}
	if strings.ContainsAny(r.PaperID, " \t\n/\\") {
		return apperrors.Newf(apperrors.ErrMalformedRecord, http.StatusBadRequest,
			"paper_id %q contains whitespace or a path separator", r.PaperID)
	}
	return nil
}

// IDFromFilename strips the directory and every extension, so both
// "PMC123.xml.json" and "PMC123.json" yield "PMC123".
func IDFromFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// AbstractText joins all abstract paragraphs.
func (r *Record) AbstractText() string {
	return joinParagraphs(r.Abstract)
}

// Body joins all body paragraphs.
func (r *Record) Body() string {
	return joinParagraphs(r.BodyText)
}

func joinParagraphs(ps []Paragraph) string {
	texts := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}
