package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemCrawler walks a directory tree rooted at Location.
type FilesystemCrawler struct {
	RepositoryName string
	Location       string
	// ConfiguredRevision is the configured repository revision string, default "HEAD".
	ConfiguredRevision string

	total int
}

// NewFilesystemCrawler constructs a FilesystemCrawler.
func NewFilesystemCrawler(repositoryName, location, configuredRevision string) *FilesystemCrawler {
	if configuredRevision == "" {
		configuredRevision = "HEAD"
	}
	return &FilesystemCrawler{
		RepositoryName:     repositoryName,
		Location:           location,
		ConfiguredRevision: configuredRevision,
	}
}

// Discover counts regular files under Location so CrawlProgress can report
// files_total before indexing starts.
func (c *FilesystemCrawler) Discover(ctx context.Context) (*int, error) {
	count := 0
	err := filepath.WalkDir(c.Location, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover filesystem tree %s: %w", c.Location, err)
	}
	c.total = count
	return &count, nil
}

// NextBatch streams every regular file under Location.
func (c *FilesystemCrawler) NextBatch(ctx context.Context) (<-chan FileItem, <-chan error) {
	items := make(chan FileItem, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		err := filepath.WalkDir(c.Location, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if d.IsDir() {
				return nil
			}

			rel, relErr := filepath.Rel(c.Location, path)
			if relErr != nil {
				rel = path
			}

			info, statErr := d.Info()
			if statErr != nil {
				// Per-file I/O errors are recovered, not fatal (spec.md §7).
				return nil
			}

			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}

			modified := info.ModTime()
			select {
			case items <- FileItem{
				Project:  c.projectFor(rel),
				Version:  c.ConfiguredRevision,
				Path:     filepath.ToSlash(rel),
				Bytes:    data,
				Size:     info.Size(),
				Modified: &modified,
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return items, errs
}

// projectFor derives the project name from the first path segment under
// the repository root, falling back to the repository name for top-level
// files (spec.md §4.3: "FILESYSTEM: project = immediate child directory
// name under the root when present, otherwise repository name").
func (c *FilesystemCrawler) projectFor(rel string) string {
	rel = filepath.ToSlash(rel)
	if idx := indexByte(rel, '/'); idx >= 0 {
		return rel[:idx]
	}
	return c.RepositoryName
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Revision returns the configured repository revision, since a plain
// filesystem tree carries no native revision concept.
func (c *FilesystemCrawler) Revision() string {
	return c.ConfiguredRevision
}

// Cleanup is a no-op for the filesystem crawler: nothing is held open.
func (c *FilesystemCrawler) Cleanup(ctx context.Context) error {
	return nil
}

var _ Crawler = (*FilesystemCrawler)(nil)
