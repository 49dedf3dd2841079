// Package library indexes the bundled sound categories and the user's
// imported sounds.
package library

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// UserCategory is the category imported sounds are listed under.
const UserCategory = "User Sounds"

var soundExts = map[string]bool{".mp3": true, ".wav": true, ".ogg": true}

// Library maps category names to sorted sound file paths.
type Library struct {
	soundsDir string
	userDir   string

	mu         sync.RWMutex
	categories map[string][]string
}

// New scans soundsDir and userDir. A missing sounds directory yields an
// empty library; the user directory is created if needed.
func New(soundsDir, userDir string) *Library {
	l := &Library{soundsDir: soundsDir, userDir: userDir}
	l.Refresh()
	return l
}

// UserDir returns the directory imports are copied into.
func (l *Library) UserDir() string { return l.userDir }

// Refresh rescans both directories.
func (l *Library) Refresh() {
	cats := make(map[string][]string)

	entries, err := os.ReadDir(l.soundsDir)
	if err != nil {
		log.Printf("Sounds directory %s unavailable: %v", l.soundsDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if files := scanDir(filepath.Join(l.soundsDir, e.Name())); len(files) > 0 {
			cats[e.Name()] = files
		}
	}

	if err := os.MkdirAll(l.userDir, 0o755); err != nil {
		log.Printf("User sounds directory %s unavailable: %v", l.userDir, err)
	} else if files := scanDir(l.userDir); len(files) > 0 {
		cats[UserCategory] = files
	}

	l.mu.Lock()
	l.categories = cats
	l.mu.Unlock()
}

func scanDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsSoundFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files
}

// IsSoundFile reports whether name has a supported audio extension.
func IsSoundFile(name string) bool {
	return soundExts[strings.ToLower(filepath.Ext(name))]
}

// Categories returns the category names, sorted.
func (l *Library) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.categories))
	for name := range l.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sounds returns the sound paths in category, nil if it does not exist.
func (l *Library) Sounds(category string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.categories[category]...)
}

// All returns a copy of every category.
func (l *Library) All() map[string][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]string, len(l.categories))
	for k, v := range l.categories {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DisplayName is the file name without directory or extension.
func DisplayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Import copies each valid sound file into the user directory, renaming on
// conflict to name_01.ext, name_02.ext and so on. Invalid paths are skipped;
// copy failures are joined into the returned error. The library is rescanned
// afterwards.
func (l *Library) Import(paths []string) ([]string, error) {
	if err := os.MkdirAll(l.userDir, 0o755); err != nil {
		return nil, fmt.Errorf("create user sounds dir: %w", err)
	}
	var imported []string
	var errs []error
	for _, src := range paths {
		fi, err := os.Stat(src)
		if err != nil || !fi.Mode().IsRegular() || !IsSoundFile(src) {
			continue
		}
		dst, err := freeName(l.userDir, filepath.Base(src))
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", src, err))
			continue
		}
		if err := copyFile(src, dst); err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", src, err))
			continue
		}
		imported = append(imported, dst)
	}
	l.Refresh()
	if len(imported) > 0 {
		log.Printf("Imported %d sound(s) into %s", len(imported), l.userDir)
	}
	return imported, errors.Join(errs...)
}

// maxRenames bounds the _NN suffixes freeName tries.
const maxRenames = 99

// freeName returns the first unused path for base in dir. Stat errors other
// than not-exist, such as a name too long for the file system, are returned.
func freeName(dir, base string) (string, error) {
	dst := filepath.Join(dir, base)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i <= maxRenames; i++ {
		_, err := os.Stat(dst)
		if errors.Is(err, fs.ErrNotExist) {
			return dst, nil
		}
		if err != nil {
			return "", fmt.Errorf("check %s: %w", dst, err)
		}
		dst = filepath.Join(dir, fmt.Sprintf("%s_%02d%s", stem, i, ext))
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", base, maxRenames)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
