// Package files is the static file store behind GET and PUT.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

var (
	ErrNotFound    = errors.New("files: not found")
	ErrOutsideRoot = errors.New("files: target escapes static root")
)

// Store resolves request targets under a root directory. Readers of a
// path may overlap; a writer excludes everyone else on that path.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*pathLock
}

// pathLock lives in Store.locks only while someone holds or waits on it.
type pathLock struct {
	sync.RWMutex
	refs int
}

func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("files: resolve root %s: %w", root, err)
	}
	return &Store{root: abs, locks: make(map[string]*pathLock)}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Resolve maps a request target to a path under the root. Targets with
// ".." elements are refused rather than cleaned away, and so are targets
// reaching outside the root through a symlink.
func (s *Store) Resolve(target string) (string, error) {
	rel := strings.TrimLeft(filepath.FromSlash(target), string(filepath.Separator))
	if rel == "" {
		return "", fmt.Errorf("%w: empty target", ErrNotFound)
	}
	for _, elem := range strings.Split(filepath.ToSlash(rel), "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
		}
	}
	path := filepath.Join(s.root, rel)
	if !within(s.root, path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	if err := s.confine(path, target); err != nil {
		return "", err
	}
	return path, nil
}

// confine resolves symlinks on the longest existing prefix of path and
// checks that it still lies under the real root. The part of path that
// does not exist yet cannot hold a link.
func (s *Store) confine(path, target string) error {
	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		// no root yet, so nothing below it exists
		return nil
	}
	for existing := path; ; {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			if !within(realRoot, real) {
				return fmt.Errorf("%w: %s", ErrOutsideRoot, target)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return fmt.Errorf("files: resolve %s: %w", target, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func (s *Store) acquire(path string) *pathLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &pathLock{}
		s.locks[path] = l
	}
	l.refs++
	return l
}

func (s *Store) release(path string, l *pathLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, path)
	}
}

// Get returns the whole file named by target.
func (s *Store) Get(target string) ([]byte, error) {
	path, err := s.Resolve(target)
	if err != nil {
		return nil, err
	}
	l := s.acquire(path)
	defer s.release(path, l)
	l.RLock()
	defer l.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		return nil, notFound(target, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, target)
	}
	fileContents, err := os.ReadFile(path)
	if err != nil {
		return nil, notFound(target, err)
	}
	return fileContents, nil
}

// Open opens target for streaming. The caller closes the file.
func (s *Store) Open(target string) (*os.File, error) {
	path, err := s.Resolve(target)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, notFound(target, err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, target)
	}
	return f, nil
}

// Put replaces the content of target with body. created reports whether
// the file did not exist before the call. The new content is written to
// a temporary file and renamed into place, so readers never see a
// partial file.
func (s *Store) Put(target string, body []byte) (created bool, err error) {
	path, err := s.Resolve(target)
	if err != nil {
		return false, err
	}
	l := s.acquire(path)
	defer s.release(path, l)
	l.Lock()
	defer l.Unlock()

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return false, fmt.Errorf("files: %s is a directory", target)
	case err == nil:
		created = false
	case errors.Is(err, fs.ErrNotExist):
		created = true
	default:
		return false, fmt.Errorf("files: stat %s: %w", target, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("files: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("files: write %s: %w", target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return false, fmt.Errorf("files: write %s: %w", target, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return false, fmt.Errorf("files: write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("files: write %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("files: write %s: %w", target, err)
	}
	return created, nil
}

func notFound(target string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	return fmt.Errorf("files: %s: %w", target, err)
}
