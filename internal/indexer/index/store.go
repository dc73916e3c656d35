package index

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/shard"
)

// Store reads and rewrites the inverted index barrels in one directory.
// Reads are safe to run concurrently with each other; rewrites must be
// serialised by the caller.
type Store struct {
	dir    string
	logger *slog.Logger
}

// OpenStore returns a Store over dir, creating the directory if needed.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating inverted index directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: slog.Default().With("component", "inverted-index"),
	}, nil
}

// Dir returns the barrel directory.
func (s *Store) Dir() string {
	return s.dir
}

// Postings returns the postings of termID. An unknown term or a missing
// barrel yields an empty list.
func (s *Store) Postings(termID int) (PostingList, error) {
	n := shard.IndexShard(termID)
	path := shard.IndexPath(s.dir, n)
	var found PostingList
	err := s.scan(path, func(id int, rest string, lineNo int) bool {
		if id != termID {
			return true
		}
		postings, bad := parsePostings(rest)
		s.warnBadTokens(path, lineNo, bad)
		found = postings
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("reading postings for term %d: %w", termID, err)
	}
	return found, nil
}

// ReadBarrel loads every entry of barrel n sorted by term ID.
func (s *Store) ReadBarrel(n int) ([]TermEntry, error) {
	b, err := s.load(n)
	if err != nil {
		return nil, err
	}
	return b.entries(), nil
}

// Merge applies updates to barrel n with one read-modify-write. Counts for an
// existing (term, document) pair are summed; new documents are appended after
// the existing postings. The barrel is replaced atomically.
func (s *Store) Merge(n int, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	b, err := s.load(n)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if shard.IndexShard(u.TermID) != n {
			return fmt.Errorf("term %d does not belong to inverted index barrel %d", u.TermID, n)
		}
		b.add(u.TermID, u.DocID, u.Count)
	}
	if err := s.write(n, b.entries()); err != nil {
		return fmt.Errorf("rewriting inverted index barrel %d: %w", n, err)
	}
	return nil
}

// MergeAll batches updates by barrel and merges each barrel once, in
// ascending order. It returns the barrels rewritten before any error.
func (s *Store) MergeAll(updates []Update) ([]int, error) {
	keys, groups := shard.GroupBy(updates, func(u Update) int {
		return shard.IndexShard(u.TermID)
	})
	done := make([]int, 0, len(keys))
	for _, n := range keys {
		if err := s.Merge(n, groups[n]); err != nil {
			return done, err
		}
		done = append(done, n)
	}
	return done, nil
}

type barrel struct {
	terms map[int]*termPostings
}

type termPostings struct {
	postings PostingList
	pos      map[string]int
}

func newBarrel() *barrel {
	return &barrel{terms: make(map[int]*termPostings)}
}

func (b *barrel) add(termID int, docID string, count int) {
	tp, ok := b.terms[termID]
	if !ok {
		tp = &termPostings{pos: make(map[string]int)}
		b.terms[termID] = tp
	}
	if i, ok := tp.pos[docID]; ok {
		tp.postings[i].Count += count
		return
	}
	tp.pos[docID] = len(tp.postings)
	tp.postings = append(tp.postings, Posting{DocID: docID, Count: count})
}

func (b *barrel) entries() []TermEntry {
	ids := make([]int, 0, len(b.terms))
	for id := range b.terms {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	entries := make([]TermEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, TermEntry{TermID: id, Postings: b.terms[id].postings})
	}
	return entries
}

func (s *Store) load(n int) (*barrel, error) {
	path := shard.IndexPath(s.dir, n)
	b := newBarrel()
	err := s.scan(path, func(id int, rest string, lineNo int) bool {
		postings, bad := parsePostings(rest)
		s.warnBadTokens(path, lineNo, bad)
		for _, p := range postings {
			b.add(id, p.DocID, p.Count)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("loading inverted index barrel %d: %w", n, err)
	}
	return b, nil
}

// scan calls fn for every well-formed line of path until fn returns false.
func (s *Store) scan(path string, fn func(termID int, rest string, lineNo int) bool) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		id, rest, err := leadingTermID(line)
		if err != nil {
			s.logger.Warn("skipping malformed inverted index line",
				"file", path,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		if !fn(id, rest, lineNo) {
			return nil
		}
	}
	return scanner.Err()
}

func (s *Store) warnBadTokens(path string, lineNo int, bad []string) {
	if len(bad) == 0 {
		return
	}
	s.logger.Warn("skipping malformed postings",
		"file", path,
		"line", lineNo,
		"tokens", bad,
	)
}

// write replaces barrel n by writing a temp file and renaming it over the
// old one, so readers see either the old or the new barrel.
func (s *Store) write(n int, entries []TermEntry) error {
	finalPath := shard.IndexPath(s.dir, n)
	f, err := os.CreateTemp(s.dir, filepath.Base(finalPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp barrel: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := w.WriteString(formatLine(e)); err != nil {
			f.Close()
			return fmt.Errorf("writing barrel: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing barrel: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing barrel: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing barrel: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting barrel permissions: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming barrel: %w", err)
	}
	return nil
}
