package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

const scriptExt = ".txt"

var (
	ErrScriptNotFound = errors.New("script not found")
	ErrInvalidName    = errors.New("invalid script name")
)

// Store keeps named scripts as <name>.txt files in one directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a store rooted at dir. A nil fs means the OS filesystem.
func NewStore(fs afero.Fs, dir string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, dir: dir}
}

// Dir returns the script directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing name.
func (s *Store) Path(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), scriptExt)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+scriptExt), nil
}

// Load reads the named script.
func (s *Store) Load(name string) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrScriptNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

// Save writes text under name, replacing any existing script.
func (s *Store) Save(name, text string) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create script directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to save script: %w", err)
	}
	return path, nil
}

// List returns the stored script names, sorted. A missing directory holds
// no scripts.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != scriptExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), scriptExt))
	}
	slices.Sort(names)
	return names, nil
}
