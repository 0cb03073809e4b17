package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestFilesystemCrawler_DiscoverCountsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "hello")
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "src/util/helper.go", "package util")

	c := NewFilesystemCrawler("demo", root, "")
	total, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if total == nil || *total != 3 {
		t.Fatalf("expected total 3, got %v", total)
	}
}

func TestFilesystemCrawler_NextBatchStreamsEveryFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "aaa")
	writeFile(t, root, "nested/b.txt", "bbb")

	c := NewFilesystemCrawler("demo", root, "")
	ctx := context.Background()
	if _, err := c.Discover(ctx); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	items, errs := c.NextBatch(ctx)
	seen := map[string]string{}
	for item := range items {
		seen[item.Path] = string(item.Bytes)
	}
	if err := <-errs; err != nil {
		t.Fatalf("NextBatch error: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(seen), seen)
	}
	if seen["a.txt"] != "aaa" {
		t.Errorf("unexpected content for a.txt: %q", seen["a.txt"])
	}
	if seen["nested/b.txt"] != "bbb" {
		t.Errorf("unexpected content for nested/b.txt: %q", seen["nested/b.txt"])
	}
}

func TestFilesystemCrawler_ProjectForUsesFirstSegment(t *testing.T) {
	c := NewFilesystemCrawler("repo-name", "/root", "")
	if got := c.projectFor("moduleA/file.go"); got != "moduleA" {
		t.Errorf("expected moduleA, got %q", got)
	}
	if got := c.projectFor("top-level.go"); got != "repo-name" {
		t.Errorf("expected fallback to repository name, got %q", got)
	}
}

func TestFilesystemCrawler_RevisionDefaultsToHead(t *testing.T) {
	c := NewFilesystemCrawler("demo", "/root", "")
	if c.Revision() != "HEAD" {
		t.Errorf("expected default revision HEAD, got %q", c.Revision())
	}
}
