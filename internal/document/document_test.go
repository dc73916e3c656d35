package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
)

const sampleRecord = `{
  "paper_id": "PMC7000001",
  "metadata": {
    "title": "Vaccine Efficacy Study",
    "authors": [
      {"first": "Ada", "middle": ["M"], "last": "Lovelace"},
      {"first": "", "middle": [], "last": "Turing"},
      {"first": "Grace", "middle": [], "last": "Hopper"},
      {"first": "Edsger", "middle": [], "last": "Dijkstra"}
    ]
  },
  "abstract": [{"text": "We measure vaccine efficacy.", "section": "Abstract", "cite_spans": []}],
  "body_text": [
    {"text": "The vaccine reduced transmission [2].", "section": "Results",
     "cite_spans": [{"start": 33, "end": 36, "text": "[2]", "ref_id": "BIBREF1"}]},
    {"text": "Earlier work [1] agrees.", "section": "Discussion",
     "cite_spans": [{"start": 13, "end": 16, "mention": "[1]", "ref_id": "BIBREF0"}]}
  ],
  "bib_entries": {
    "BIBREF0": {"ref_id": "b0", "title": "Early work", "authors": [{"first": "A", "middle": [], "last": "Smith"}], "year": 2001, "venue": "Nature"},
    "BIBREF1": {"ref_id": "b1", "title": "", "authors": [], "venue": ""},
    "BIBREF7": {"ref_id": "b7", "title": "Uncited", "authors": [
      {"first": "", "middle": [], "last": "A"}, {"first": "", "middle": [], "last": "B"},
      {"first": "", "middle": [], "last": "C"}, {"first": "", "middle": [], "last": "D"}], "venue": ""}
  }
}`

func TestParse(t *testing.T) {
	rec, err := Parse([]byte(sampleRecord), "PMC7000001.xml.json")
	require.NoError(t, err)
	assert.Equal(t, "PMC7000001", rec.PaperID)
	assert.Equal(t, "Vaccine Efficacy Study", rec.Metadata.Title)
	assert.Equal(t, "Ada M Lovelace", rec.Metadata.Authors[0].FullName())
	assert.Equal(t, "We measure vaccine efficacy.", rec.AbstractText())
	assert.Equal(t, "The vaccine reduced transmission [2]. Earlier work [1] agrees.", rec.Body())
}

func TestParseDefaultsPaperIDFromFilename(t *testing.T) {
	rec, err := Parse([]byte(`{"metadata": {"title": "x"}}`), "/drop/abc123.xml.json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", rec.PaperID)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte(`{not json`), "a.json")
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)

	_, err = Parse([]byte(`{}`), "")
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)

	_, err = Parse([]byte(`{"paper_id": "has space"}`), "a.json")
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
}

func TestStoreLookupOrder(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "PMC1.xml.json"), []byte(`{"paper_id":"PMC1"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hash9-v2.json"), []byte(`{"paper_id":"hash9"}`), 0o644))

	path, err := s.Locate("PMC1")
	require.NoError(t, err)
	assert.Equal(t, "PMC1.xml.json", filepath.Base(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "PMC1.json"), []byte(`{"paper_id":"PMC1"}`), 0o644))
	path, err = s.Locate("PMC1")
	require.NoError(t, err)
	assert.Equal(t, "PMC1.json", filepath.Base(path))

	rec, err := s.Get("hash9")
	require.NoError(t, err)
	assert.Equal(t, "hash9", rec.PaperID)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	_, err = s.Get("../etc/passwd")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStoreSaveRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "jsons"))
	rec, err := Parse([]byte(sampleRecord), "x.json")
	require.NoError(t, err)

	path, err := s.Save(rec, "")
	require.NoError(t, err)
	assert.Equal(t, "PMC7000001.json", filepath.Base(path))

	got, err := s.Get("PMC7000001")
	require.NoError(t, err)
	assert.Equal(t, rec.Metadata, got.Metadata)
	assert.Len(t, got.BibEntries, 3)
}

func TestSummarize(t *testing.T) {
	rec, err := Parse([]byte(sampleRecord), "x.json")
	require.NoError(t, err)

	s := Summarize(rec)
	assert.Equal(t, "PMC7000001", s.ID)
	assert.Equal(t, "Vaccine Efficacy Study", s.Title)
	assert.Equal(t, "Ada Lovelace, Turing, Grace Hopper, et al.", s.Authors)
	assert.Equal(t, "We measure vaccine efficacy.", s.Abstract)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC7000001/", s.URL)
}

func TestSummarizeFallbacks(t *testing.T) {
	long := strings.Repeat("a", 400)
	rec := &Record{
		PaperID:  "deadbeef",
		BodyText: []Paragraph{{Text: long}},
	}
	s := Summarize(rec)
	assert.Equal(t, "Untitled Document", s.Title)
	assert.Equal(t, "Unknown Authors", s.Authors)
	assert.Equal(t, strings.Repeat("a", 300)+"...", s.Abstract)
	assert.Equal(t, "https://www.semanticscholar.org/paper/deadbeef", s.URL)
}

func TestReferencesCitationOrder(t *testing.T) {
	rec, err := Parse([]byte(sampleRecord), "x.json")
	require.NoError(t, err)

	refs := References(rec)
	require.Len(t, refs, 3)
	assert.Equal(t, "1", refs[0].Number)
	assert.Equal(t, "Smith", refs[0].Authors)
	assert.Equal(t, 2001, refs[0].Year)
	assert.Equal(t, "2", refs[1].Number)
	assert.Equal(t, "No title", refs[1].Title)
	assert.Equal(t, "Unknown", refs[1].Authors)
	assert.Equal(t, "BIBREF7", refs[2].Number)
	assert.Equal(t, "A et al.", refs[2].Authors)
}
