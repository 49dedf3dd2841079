package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Store keeps named session documents.
type Store interface {
	Save(ctx context.Context, name string, doc Document) error
	Load(ctx context.Context, name string) (Document, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Info summarizes a stored session without restoring it.
type Info struct {
	Name       string   `json:"name"`
	TrackCount int      `json:"trackCount"`
	Metadata   Metadata `json:"metadata"`
}

// Describe loads a session and returns its summary.
func Describe(ctx context.Context, s Store, name string) (Info, error) {
	doc, err := s.Load(ctx, name)
	if err != nil {
		return Info{}, err
	}
	info := Info{Name: doc.Metadata.Name, TrackCount: len(doc.Tracks), Metadata: doc.Metadata}
	if info.Name == "" {
		info.Name = baseName(name)
	}
	return info, nil
}

// baseName strips a known document extension from a session name.
func baseName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// validName rejects names that could escape a store's namespace.
func validName(name string) error {
	n := baseName(name)
	if n == "" || n == "." || n == ".." || strings.ContainsAny(n, `/\`) {
		return fmt.Errorf("%w: invalid session name %q", ErrSessionIO, name)
	}
	return nil
}
