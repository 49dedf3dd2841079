package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps one document per file in a directory. Names without an
// extension are stored as JSON; .yaml and .yml names use YAML.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create sessions dir: %v", ErrSessionIO, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return filepath.Join(s.dir, name)
	}
	return filepath.Join(s.dir, name+".json")
}

// resolve finds an existing file for name, trying each known extension
// when name has none.
func (s *FileStore) resolve(name string) (string, error) {
	if baseName(name) != name {
		return s.path(name), nil
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Save writes doc atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, name string, doc Document) error {
	if err := validName(name); err != nil {
		return err
	}
	p := s.path(name)
	data, err := CodecFor(p).Marshal(doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrSessionIO, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write %s: %v", ErrSessionIO, p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: close %s: %v", ErrSessionIO, p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: rename %s: %v", ErrSessionIO, p, err)
	}
	return nil
}

// Load reads and decodes the named document.
func (s *FileStore) Load(_ context.Context, name string) (Document, error) {
	if err := validName(name); err != nil {
		return Document{}, err
	}
	p, err := s.resolve(name)
	if err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: read %s: %v", ErrSessionIO, p, err)
	}
	return CodecFor(p).Unmarshal(data)
}

// List returns stored session names without extensions, sorted.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrSessionIO, s.dir, err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n := baseName(e.Name())
		if n == e.Name() || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named document.
func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("%w: delete %s: %v", ErrSessionIO, p, err)
	}
	return nil
}
