// Package lexicon maps terms to permanent integer term IDs. The dictionary
// is persisted across 27 barrels chosen by a term's first character; each
// barrel line is "<term>\t<term_id>". Barrels are append-only: an ID, once
// written, is never rewritten, reassigned or removed.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/shard"
)

// Entry is one persisted lexicon line.
type Entry struct {
	Term string
	ID   int
}

// Store is the writable lexicon owned by the indexer. It holds the full
// dictionary in memory and buffers newly created terms until Commit appends
// them to their barrels.
type Store struct {
	dir     string
	terms   map[string]int
	nextID  int
	pending map[int][]Entry
	logger  *slog.Logger
}

// Open loads every barrel under dir, creating the directory if needed. The
// next term ID is one past the largest ID found, or 0 for an empty lexicon.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating lexicon directory: %w", err)
	}
	s := &Store{
		dir:     dir,
		terms:   make(map[string]int),
		pending: make(map[int][]Entry),
		logger:  slog.Default().With("component", "lexicon"),
	}
	maxID := -1
	err := Walk(dir, func(e Entry) {
		if _, exists := s.terms[e.Term]; exists {
			s.logger.Warn("duplicate lexicon term, keeping first id", "term", e.Term, "id", e.ID)
			return
		}
		s.terms[e.Term] = e.ID
		if e.ID > maxID {
			maxID = e.ID
		}
	})
	if err != nil {
		return nil, err
	}
	s.nextID = maxID + 1
	s.logger.Info("lexicon loaded", "dir", dir, "terms", len(s.terms), "next_id", s.nextID)
	return s, nil
}

// Resolve returns the ID of a known term.
func (s *Store) Resolve(term string) (int, bool) {
	id, ok := s.terms[term]
	return id, ok
}

// ResolveOrCreate returns the ID for term, assigning the next free ID when the
// term is new. New terms become durable on the next Commit.
func (s *Store) ResolveOrCreate(term string) (id int, created bool) {
	if id, ok := s.terms[term]; ok {
		return id, false
	}
	id = s.nextID
	s.nextID++
	s.terms[term] = id
	n := shard.LexiconShard(term)
	s.pending[n] = append(s.pending[n], Entry{Term: term, ID: id})
	return id, true
}

// Commit appends every pending term to its barrel and returns the barrels
// written, ascending. A barrel that fails to write keeps its pending terms.
func (s *Store) Commit() ([]int, error) {
	if len(s.pending) == 0 {
		return nil, nil
	}
	barrels := make([]int, 0, len(s.pending))
	for n := 1; n <= shard.NumLexicon; n++ {
		entries, ok := s.pending[n]
		if !ok {
			continue
		}
		if err := appendEntries(shard.LexiconPath(s.dir, n), entries); err != nil {
			return barrels, fmt.Errorf("appending to lexicon barrel %d: %w", n, err)
		}
		delete(s.pending, n)
		barrels = append(barrels, n)
	}
	return barrels, nil
}

// Len returns the number of known terms.
func (s *Store) Len() int {
	return len(s.terms)
}

// NextID returns the ID the next new term will receive.
func (s *Store) NextID() int {
	return s.nextID
}

// Dir returns the barrel directory.
func (s *Store) Dir() string {
	return s.dir
}

func appendEntries(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		w.WriteString(e.Term)
		w.WriteByte('\t')
		w.WriteString(strconv.Itoa(e.ID))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Walk visits every entry of every barrel under dir in barrel order. Missing
// barrels are empty.
func Walk(dir string, fn func(Entry)) error {
	for n := 1; n <= shard.NumLexicon; n++ {
		if err := ReadBarrel(dir, n, fn); err != nil {
			return err
		}
	}
	return nil
}

// ReadBarrel streams the entries of barrel n. A missing file yields no
// entries; malformed lines are logged and skipped.
func ReadBarrel(dir string, n int, fn func(Entry)) error {
	path := shard.LexiconPath(dir, n)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening lexicon barrel %d: %w", n, err)
	}
	defer f.Close()

	logger := slog.Default().With("component", "lexicon")
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			logger.Warn("skipping malformed lexicon line",
				"file", path,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		fn(entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading lexicon barrel %d: %w", n, err)
	}
	return nil
}

func parseLine(line string) (Entry, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return Entry{}, fmt.Errorf("expected 2 tab-separated fields, got %d", len(parts))
	}
	if parts[0] == "" {
		return Entry{}, fmt.Errorf("empty term")
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return Entry{}, fmt.Errorf("term id %q: %w", parts[1], err)
	}
	if id < 0 {
		return Entry{}, fmt.Errorf("negative term id %d", id)
	}
	return Entry{Term: parts[0], ID: id}, nil
}
