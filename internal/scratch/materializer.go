// Package scratch writes job scripts to uniquely named temporary files.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrIO marks failures to write a scratch script
var ErrIO = errors.New("scratch io error")

// Script is one materialized job script, owned by a single invocation
type Script struct {
	path     string
	once     sync.Once
	released error
}

// Path is the absolute location of the script
func (s *Script) Path() string {
	return s.path
}

// Materializer writes scripts into a directory
type Materializer struct {
	dir string
}

// NewMaterializer creates a materializer rooted at dir. An empty dir means the OS temp dir.
func NewMaterializer(dir string) *Materializer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Materializer{dir: dir}
}

// Materialize writes source to <dir>/<id>.js. The file must not already exist.
func (m *Materializer) Materialize(id, source string) (*Script, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: invalid script id %q", ErrIO, id)
	}

	dir, err := filepath.Abs(m.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	path := filepath.Join(dir, id+".js")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", ErrIO, path, err)
	}

	if _, err := f.WriteString(source); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: failed to write %s: %v", ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: failed to close %s: %v", ErrIO, path, err)
	}

	return &Script{path: path}, nil
}

// Release deletes the script. Repeated calls and an already missing file are not errors.
func (m *Materializer) Release(s *Script) error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.released = fmt.Errorf("failed to remove %s: %w", s.path, err)
		}
	})
	return s.released
}
