package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
)

func testConfig(t *testing.T) config.IndexerConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Indexer.DataDir = t.TempDir()
	cfg.ResolveDirs()
	cfg.Indexer.Workers = 3
	cfg.Indexer.FlushDocuments = 2
	return cfg.Indexer
}

func newEngine(t *testing.T, cfg config.IndexerConfig, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func record(id, title, abstract, body string) *document.Record {
	rec := &document.Record{PaperID: id}
	rec.Metadata.Title = title
	if abstract != "" {
		rec.Abstract = []document.Paragraph{{Text: abstract}}
	}
	if body != "" {
		rec.BodyText = []document.Paragraph{{Text: body}}
	}
	return rec
}

func TestAnalyzeWeightsSections(t *testing.T) {
	a := Analyze(record("D1", "Vaccine Efficacy Study", "", "The vaccine reduced transmission in 2020."))
	assert.Equal(t, "D1", a.PaperID)
	assert.Equal(t, 11, a.Weights["vaccin"])
	assert.Equal(t, 1, a.Weights["transmiss"])
	_, numeric := a.Weights["2020"]
	assert.False(t, numeric)
	// vaccin effici studi | vaccin reduc transmiss 2020
	assert.Equal(t, 7, a.Length)
	assert.Equal(t, "vaccin", a.Terms[0])
}

func TestAnalyzeAbstractWeight(t *testing.T) {
	a := Analyze(record("D1", "", "virus virus", ""))
	assert.Equal(t, 10, a.Weights["virus"])
	assert.Equal(t, 2, a.Length)
}

func TestIndexDocumentWritesBarrels(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg)

	res, err := e.IndexDocument(context.Background(), record("D1", "virus", "", "virus spread"), "D1.json")
	require.NoError(t, err)
	assert.Equal(t, "D1", res.PaperID)
	assert.Equal(t, 2, res.TermsAdded)
	assert.ElementsMatch(t, []string{"virus", "spread"}, res.NewTerms)
	assert.Equal(t, []int{19, 22}, res.Shards.Lexicon)
	assert.Equal(t, []int{0, 1}, res.Shards.InvertedIndex)

	lex, err := lexicon.Open(cfg.LexiconDir)
	require.NoError(t, err)
	id, ok := lex.Resolve("virus")
	require.True(t, ok)

	inv, err := index.OpenStore(cfg.InvertedIndexDir)
	require.NoError(t, err)
	postings, err := inv.Postings(id)
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: "D1", Count: 11}}, postings)

	length, ok := e.Stats().Length("D1")
	assert.True(t, ok)
	assert.Equal(t, 3, length)
}

func TestIndexingKeepsEarlierPostings(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg)
	ctx := context.Background()

	_, err := e.IndexDocument(ctx, record("D1", "", "", "virus virus"), "")
	require.NoError(t, err)
	res, err := e.IndexDocument(ctx, record("D2", "virus", "", ""), "")
	require.NoError(t, err)
	assert.Zero(t, res.TermsAdded)

	lex, err := lexicon.Open(cfg.LexiconDir)
	require.NoError(t, err)
	id, _ := lex.Resolve("virus")
	data, err := os.ReadFile(shard.IndexPath(cfg.InvertedIndexDir, shard.IndexShard(id)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "D1:2")
	assert.Contains(t, string(data), "D2:10")
}

func TestReindexIsAdditive(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg)
	ctx := context.Background()
	rec := record("D1", "", "", "virus")

	_, err := e.IndexDocument(ctx, rec, "")
	require.NoError(t, err)
	_, err = e.IndexDocument(ctx, rec, "")
	require.NoError(t, err)

	inv, err := index.OpenStore(cfg.InvertedIndexDir)
	require.NoError(t, err)
	postings, err := inv.Postings(0)
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: "D1", Count: 2}}, postings)
	assert.Equal(t, int64(1), e.Stats().TotalDocuments())
}

func TestIndexDocumentSavesRecord(t *testing.T) {
	cfg := testConfig(t)
	docs := document.NewStore(filepath.Join(cfg.DataDir, "jsons"))
	e := newEngine(t, cfg, WithDocumentStore(docs))

	res, err := e.IndexDocument(context.Background(), record("PMC9", "Masks", "", ""), "PMC9.xml.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.DataDir, "jsons", "PMC9.xml.json"), res.SavedPath)
	got, err := docs.Get("PMC9")
	require.NoError(t, err)
	assert.Equal(t, "Masks", got.Metadata.Title)
}

func TestIndexDocumentRejectsInvalidRecord(t *testing.T) {
	e := newEngine(t, testConfig(t))
	_, err := e.IndexDocument(context.Background(), &document.Record{}, "")
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
}

func TestSecondEngineIsLocked(t *testing.T) {
	cfg := testConfig(t)
	newEngine(t, cfg)
	_, err := NewEngine(cfg)
	assert.ErrorIs(t, err, apperrors.ErrIndexLocked)
}

func writeRecords(t *testing.T, dir string, n int) {
	t.Helper()
	words := []string{"virus", "vaccin", "mask", "lung", "fever", "cough", "immun", "cell"}
	for i := 0; i < n; i++ {
		rec := record(fmt.Sprintf("doc%02d", i),
			words[i%len(words)]+" "+words[(i+1)%len(words)],
			"",
			strings.Repeat(words[(i+3)%len(words)]+" ", i%4+1),
		)
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, rec.PaperID+".json"), data, 0o644))
	}
}

func TestIndexDirectory(t *testing.T) {
	cfg := testConfig(t)
	src := t.TempDir()
	writeRecords(t, src, 9)
	require.NoError(t, os.WriteFile(filepath.Join(src, "broken.json"), []byte("{"), 0o644))

	e := newEngine(t, cfg)
	res, err := e.IndexDirectory(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Indexed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(9), e.Stats().TotalDocuments())

	lex, err := lexicon.Open(cfg.LexiconDir)
	require.NoError(t, err)
	assert.Equal(t, res.TermsAdded, lex.Len())

	ids := make(map[int]string)
	require.NoError(t, lexicon.Walk(cfg.LexiconDir, func(en lexicon.Entry) {
		prev, dup := ids[en.ID]
		assert.False(t, dup, "id %d shared by %q and %q", en.ID, prev, en.Term)
		ids[en.ID] = en.Term
	}))
}

func TestIndexFilesAssignsIDsInInputOrder(t *testing.T) {
	src := t.TempDir()
	writeRecords(t, src, 6)
	files, err := filepath.Glob(filepath.Join(src, "*.json"))
	require.NoError(t, err)

	snapshot := func(workers int) map[string]int {
		cfg := testConfig(t)
		cfg.Workers = workers
		e := newEngine(t, cfg)
		_, err := e.IndexFiles(context.Background(), files)
		require.NoError(t, err)
		out := make(map[string]int)
		require.NoError(t, lexicon.Walk(cfg.LexiconDir, func(en lexicon.Entry) { out[en.Term] = en.ID }))
		return out
	}
	assert.Equal(t, snapshot(1), snapshot(4))
}

func TestIndexFilesHonoursCancellation(t *testing.T) {
	src := t.TempDir()
	writeRecords(t, src, 4)
	e := newEngine(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.IndexDirectory(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkAnalyze(b *testing.B) {
	rec := record("bench", "Severe acute respiratory syndrome coronavirus",
		strings.Repeat("Vaccines reduce transmission and hospitalisation. ", 10),
		strings.Repeat("Antiviral treatments shorten the duration of symptoms in clinical trials. ", 200))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Analyze(rec)
	}
}
