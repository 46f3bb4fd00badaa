package files

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGetExisting(t *testing.T) {
	s := newStore(t)
	content := []byte{0x89, 'P', 'N', 'G', 0x00, '\r', '\n'}
	if err := os.WriteFile(filepath.Join(s.Root(), "image.png"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("image.png")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, got) {
		t.Errorf("Got %v, want %v", got, content)
	}
	// leading slash resolves to the same file
	if _, err := s.Get("/image.png"); err != nil {
		t.Errorf("Get(/image.png) = %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get("foo.html"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Got %v, want ErrNotFound", err)
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("dir"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(dir) = %v, want ErrNotFound", err)
	}
}

func TestPutCreatesThenOverwrites(t *testing.T) {
	s := newStore(t)
	created, err := s.Put("test.txt", []byte("a much longer first version"))
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Errorf("first Put reported overwrite")
	}

	created, err = s.Put("test.txt", []byte("short"))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Errorf("second Put reported create")
	}
	got, err := os.ReadFile(filepath.Join(s.Root(), "test.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Errorf("Got %q, want %q", got, "short")
	}

	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 1 {
		t.Errorf("Got %d entries in root, want 1 (temp file left behind?)", len(entries))
	}
}

func TestPutNestedTarget(t *testing.T) {
	s := newStore(t)
	if _, err := s.Put("a/b/c.bin", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("a/b/c.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Got %v", got)
	}
}

func TestTraversalRefused(t *testing.T) {
	s := newStore(t)
	for _, target := range []string{"../../etc/passwd", "a/../../b", "..", "/../secret"} {
		if _, err := s.Get(target); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Get(%q) = %v, want ErrOutsideRoot", target, err)
		}
		if _, err := s.Put(target, []byte("x")); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Put(%q) = %v, want ErrOutsideRoot", target, err)
		}
	}
}

func TestOpen(t *testing.T) {
	s := newStore(t)
	if _, err := s.Open("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Got %v, want ErrNotFound", err)
	}
	if _, err := s.Put("present.txt", []byte("data")); err != nil {
		t.Fatal(err)
	}
	f, err := s.Open("present.txt")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
}

// GET never observes anything but a complete version of the file.
func TestConcurrentGetPut(t *testing.T) {
	s := newStore(t)
	versions := [][]byte{bytes.Repeat([]byte("a"), 64*1024), bytes.Repeat([]byte("b"), 32*1024)}
	if _, err := s.Put("shared.bin", versions[0]); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Put("shared.bin", versions[i%2]); err != nil {
				t.Errorf("Put: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			got, err := s.Get("shared.bin")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if !bytes.Equal(got, versions[0]) && !bytes.Equal(got, versions[1]) {
				t.Errorf("Got a partial file of %d bytes", len(got))
			}
		}()
	}
	wg.Wait()
}

func TestLocksReleased(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 1000; i++ {
		if _, err := s.Get(fmt.Sprintf("missing-%d.html", i)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get = %v, want ErrNotFound", err)
		}
	}
	for i := 0; i < 10; i++ {
		if _, err := s.Put(fmt.Sprintf("put-%d.txt", i), []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	s.mu.Lock()
	n := len(s.locks)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("Got %d lock entries after all calls returned, want 0", n)
	}
}

func TestSymlinkEscapeRefused(t *testing.T) {
	s := newStore(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(s.Root(), "alias.txt")); err != nil {
		t.Fatal(err)
	}

	for _, target := range []string{"link/secret.txt", "alias.txt", "link"} {
		if _, err := s.Get(target); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Get(%q) = %v, want ErrOutsideRoot", target, err)
		}
	}
	for _, target := range []string{"link/new.txt", "link/sub/new.txt"} {
		if _, err := s.Put(target, []byte("x")); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Put(%q) = %v, want ErrOutsideRoot", target, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outside, "new.txt")); err == nil {
		t.Errorf("Put wrote outside the root")
	}

	// links that stay inside the root are fine
	if err := os.Mkdir(filepath.Join(s.Root(), "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(s.Root(), "real"), filepath.Join(s.Root(), "inner")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put("inner/ok.txt", []byte("ok")); err != nil {
		t.Errorf("Put(inner/ok.txt) = %v", err)
	}
}
