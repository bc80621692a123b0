package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func mkfile(t *testing.T, s *FS, rel, content string) string {
	t.Helper()
	p := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWalkChildrenBeforeParents(t *testing.T) {
	s := tempRoot(t)
	mkfile(t, s, "a/b/c.mkv", "c")
	mkfile(t, s, "a/d.nfo", "d")
	mkfile(t, s, "top.mkv", "top")

	entries, err := s.Walk(context.Background())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len = %d, want 5", len(entries))
	}
	pos := make(map[string]int)
	for i, e := range entries {
		rel, _ := filepath.Rel(s.root, e.Path)
		pos[rel] = i
		if e.Path == s.root {
			t.Error("root returned by Walk")
		}
	}
	order := [][2]string{
		{"a/b/c.mkv", "a/b"},
		{"a/b", "a"},
		{"a/d.nfo", "a"},
	}
	for _, o := range order {
		if pos[o[0]] > pos[o[1]] {
			t.Errorf("%s listed after its parent %s", o[0], o[1])
		}
	}
	if e := entries[pos["top.mkv"]]; e.Dir || e.Size != 3 {
		t.Errorf("top.mkv entry = %+v", e)
	}
}

func TestIsEmptyDir(t *testing.T) {
	s := tempRoot(t)
	mkfile(t, s, "full/x", "x")
	if err := os.Mkdir(filepath.Join(s.root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	cases := map[string]bool{"empty": true, "full": false, "full/x": false}
	for p, want := range cases {
		got, err := s.IsEmptyDir(p)
		if err != nil {
			t.Fatalf("IsEmptyDir(%s): %v", p, err)
		}
		if got != want {
			t.Errorf("IsEmptyDir(%s) = %v, want %v", p, got, want)
		}
	}
}

func TestRemove(t *testing.T) {
	s := tempRoot(t)
	abs := mkfile(t, s, "sub/del.mkv", "bye")

	if err := s.Remove(abs); err != nil {
		t.Fatalf("Remove file: %v", err)
	}
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if err := s.Remove("sub"); err != nil {
		t.Fatalf("Remove empty dir: %v", err)
	}
}

func TestRemoveNonEmptyDirFails(t *testing.T) {
	s := tempRoot(t)
	mkfile(t, s, "sub/keep.mkv", "k")
	if err := s.Remove("sub"); err == nil {
		t.Error("expected error removing non-empty directory")
	}
}

func TestRemoveRootRefused(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"", ".", s.root} {
		if err := s.Remove(p); err == nil {
			t.Errorf("expected error removing root via %q", p)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.mkv",
		"/etc/shadow",
		s.root + "-sibling/file",
	}
	for _, p := range cases {
		if _, err := s.IsEmptyDir(p); err == nil {
			t.Errorf("expected error for read of %q", p)
		}
		if err := s.Remove(p); err == nil {
			t.Errorf("expected error for remove of %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/seedkeeper-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "seedkeeper-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
