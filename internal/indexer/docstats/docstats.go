// Package docstats persists per-document lengths and embedded terms and
// serves the corpus statistics BM25 needs. The file is append-only, one
// line per indexing of a document: "<doc_id>\t<length>\t<term> <term> ...".
package docstats

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Entry is one document's recorded statistics.
type Entry struct {
	DocID         string
	Length        int
	EmbeddedTerms []string
}

// Store is safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	docs     map[string]Entry
	totalLen int64
}

// Open loads the statistics file at path. A missing file is an empty corpus.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: slog.Default().With("component", "docstats"),
		docs:   make(map[string]Entry),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file, replacing the in-memory view.
func (s *Store) Reload() error {
	docs := make(map[string]Entry)
	var total int64

	f, err := os.Open(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("opening doc stats: %w", err)
	}
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimRight(scanner.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			e, err := parseLine(line)
			if err != nil {
				s.logger.Warn("skipping malformed doc stats line",
					"file", s.path,
					"line", lineNo,
					"error", err,
				)
				continue
			}
			if prev, ok := docs[e.DocID]; ok {
				total -= int64(prev.Length)
			}
			docs[e.DocID] = e
			total += int64(e.Length)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading doc stats: %w", err)
		}
	}

	s.mu.Lock()
	s.docs = docs
	s.totalLen = total
	s.mu.Unlock()
	return nil
}

// Append records e durably and updates the in-memory view. A document that
// was already recorded takes the new length.
func (s *Store) Append(e Entry) error {
	if e.DocID == "" || strings.ContainsAny(e.DocID, "\t\n") {
		return fmt.Errorf("invalid document id %q", e.DocID)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating doc stats directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening doc stats for append: %w", err)
	}
	if _, err := f.WriteString(formatLine(e)); err != nil {
		f.Close()
		return fmt.Errorf("appending doc stats: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing doc stats: %w", err)
	}

	s.mu.Lock()
	if prev, ok := s.docs[e.DocID]; ok {
		s.totalLen -= int64(prev.Length)
	}
	s.docs[e.DocID] = e
	s.totalLen += int64(e.Length)
	s.mu.Unlock()
	return nil
}

// TotalDocuments is the number of distinct documents recorded.
func (s *Store) TotalDocuments() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs))
}

// AverageLength is the mean document length, or 0 for an empty corpus.
func (s *Store) AverageLength() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.docs) == 0 {
		return 0
	}
	return float64(s.totalLen) / float64(len(s.docs))
}

// Length returns the recorded length of docID.
func (s *Store) Length(docID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[docID]
	return e.Length, ok
}

// EmbeddedTerms returns the terms of docID that had embeddings when it was
// indexed.
func (s *Store) EmbeddedTerms(docID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docID].EmbeddedTerms
}

func formatLine(e Entry) string {
	return e.DocID + "\t" + strconv.Itoa(e.Length) + "\t" + strings.Join(e.EmbeddedTerms, " ") + "\n"
}

func parseLine(line string) (Entry, error) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 || len(parts) > 3 {
		return Entry{}, fmt.Errorf("expected 2 or 3 tab-separated fields, got %d", len(parts))
	}
	if parts[0] == "" {
		return Entry{}, fmt.Errorf("empty document id")
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return Entry{}, fmt.Errorf("length %q: %w", parts[1], err)
	}
	if length < 0 {
		return Entry{}, fmt.Errorf("negative length %d", length)
	}
	e := Entry{DocID: parts[0], Length: length}
	if len(parts) == 3 {
		e.EmbeddedTerms = strings.Fields(parts[2])
	}
	return e, nil
}
