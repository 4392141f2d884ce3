package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type Key string

const (
	KeyCurrentRaw    Key = "current-raw"
	KeyCurrentParsed Key = "current-parsed"
	KeyArchive1      Key = "archive-1"
	KeyArchive2      Key = "archive-2"
)

// ErrNotFound is returned by Read when the document file does not exist.
var ErrNotFound = errors.New("document not found")

// Layout names the file backing each key, relative to the data directory.
// Archive keys with an empty file name are never present.
type Layout struct {
	CurrentRaw    string
	CurrentParsed string
	Archive1      string
	Archive2      string
}

func DefaultLayout() Layout {
	return Layout{
		CurrentRaw:    "sheet-data.json",
		CurrentParsed: "sheet-data-parsed.json",
	}
}

// FileStore keeps each document as one indented JSON file under dir.
type FileStore struct {
	dir   string
	files map[Key]string
}

func NewFileStore(dir string, layout Layout) *FileStore {
	files := map[Key]string{
		KeyCurrentRaw:    layout.CurrentRaw,
		KeyCurrentParsed: layout.CurrentParsed,
		KeyArchive1:      layout.Archive1,
		KeyArchive2:      layout.Archive2,
	}
	return &FileStore{dir: dir, files: files}
}

// Path returns the file backing key, or "" when the key is not configured.
func (s *FileStore) Path(key Key) string {
	name := s.files[key]
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Read decodes the document stored under key into out. A missing file or an
// unconfigured key yields ErrNotFound; any other failure is returned wrapped
// so callers can tell a broken file from an absent one.
func (s *FileStore) Read(key Key, out any) error {
	path := s.Path(key)
	if path == "" {
		return fmt.Errorf("read %s: %w", key, ErrNotFound)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s (%s): %w", key, path, err)
	}
	return nil
}

// Write replaces the document stored under key. The JSON is written to a
// sibling temp file and renamed over the target, so readers never observe a
// partially written document.
func (s *FileStore) Write(key Key, doc any) error {
	path := s.Path(key)
	if path == "" {
		return fmt.Errorf("write %s: no file configured", key)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}
