package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
)

// Store reads and writes paper records as JSON files in one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		logger: slog.Default().With("component", "document-store"),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// Locate returns the file holding id. It tries "<id>.json", then
// "<id>.xml.json", then any "<id>*.json".
func (s *Store) Locate(id string) (string, error) {
	if id == "" || filepath.Base(id) != id {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid document id %q", id)
	}
	for _, name := range []string{id + ".json", id + ".xml.json"} {
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, globEscape(id)+"*.json"))
	if err != nil {
		return "", fmt.Errorf("globbing for document %s: %w", id, err)
	}
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], nil
	}
	return "", apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %s", id)
}

// Get loads the record stored for id.
func (s *Store) Get(id string) (*Record, error) {
	path, err := s.Locate(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %s", id)
		}
		return nil, fmt.Errorf("reading document %s: %w", id, err)
	}
	return Parse(data, filepath.Base(path))
}

// Save writes rec as indented JSON under filename, or "<paper_id>.json" when
// filename is empty, and returns the path written.
func (s *Store) Save(rec *Record, filename string) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if filename == "" {
		filename = rec.PaperID + ".json"
	}
	filename = filepath.Base(filename)
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating document directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding document %s: %w", rec.PaperID, err)
	}
	finalPath := filepath.Join(s.dir, filename)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing document %s: %w", rec.PaperID, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming document %s: %w", rec.PaperID, err)
	}
	s.logger.Debug("document saved", "paper_id", rec.PaperID, "path", finalPath)
	return finalPath, nil
}

func globEscape(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
