package crawler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// SVNCrawler checks out (or updates) a Subversion working copy via the
// svn CLI and walks it, deriving project/version from the trunk/branches/
// tags layout convention (spec.md §4.3).
type SVNCrawler struct {
	RepositoryName string
	URL            string
	WorkspaceDir   string
	Credentials    *domain.Credentials

	revision string
}

// NewSVNCrawler constructs an SVNCrawler.
func NewSVNCrawler(repositoryName, url, workspaceDir string, creds *domain.Credentials) *SVNCrawler {
	return &SVNCrawler{
		RepositoryName: repositoryName,
		URL:            url,
		WorkspaceDir:   workspaceDir,
		Credentials:    creds,
	}
}

func (c *SVNCrawler) authArgs() []string {
	if c.Credentials == nil || c.Credentials.Secret == "" {
		return nil
	}
	return []string{"--username", c.Credentials.Username, "--password", c.Credentials.Secret, "--non-interactive"}
}

func (c *SVNCrawler) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "svn", append(args, c.authArgs()...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("svn %s: %w: %s", strings.Join(args, " "), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("svn %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// Discover checks out a fresh working copy, or updates an existing one,
// then counts the files under it.
func (c *SVNCrawler) Discover(ctx context.Context) (*int, error) {
	if _, err := os.Stat(filepath.Join(c.WorkspaceDir, ".svn")); err == nil {
		if _, err := c.run(ctx, "update", c.WorkspaceDir); err != nil {
			return nil, err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(c.WorkspaceDir), 0o755); err != nil {
			return nil, fmt.Errorf("create workspace parent: %w", err)
		}
		if _, err := c.run(ctx, "checkout", c.URL, c.WorkspaceDir); err != nil {
			return nil, err
		}
	}

	rev, err := c.currentRevision(ctx)
	if err != nil {
		return nil, err
	}
	c.revision = rev

	count := 0
	err = filepath.Walk(c.WorkspaceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".svn" {
				return filepath.SkipDir
			}
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk svn workspace: %w", err)
	}
	return &count, nil
}

func (c *SVNCrawler) currentRevision(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "info", c.WorkspaceDir)
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Revision:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Revision:")), nil
		}
	}
	return "", fmt.Errorf("svn info for %s: no Revision field", c.WorkspaceDir)
}

// NextBatch streams every regular file in the working copy, deriving
// project/version from the trunk/branches/<name>/tags/<name> convention.
func (c *SVNCrawler) NextBatch(ctx context.Context) (<-chan FileItem, <-chan error) {
	items := make(chan FileItem, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		err := filepath.Walk(c.WorkspaceDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if info.IsDir() {
				if info.Name() == ".svn" {
					return filepath.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(c.WorkspaceDir, path)
			if relErr != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)

			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}

			modified := info.ModTime()
			select {
			case items <- FileItem{
				Project:  c.RepositoryName,
				Version:  c.versionFor(rel),
				Path:     rel,
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

// versionFor derives a branch/tag label from the trunk/branches/tags
// convention: "branches/<name>/..." and "tags/<name>/..." yield <name>;
// anything under trunk, or with no recognizable layout, yields "trunk".
func (c *SVNCrawler) versionFor(rel string) string {
	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		if (seg == "branches" || seg == "tags") && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return "trunk"
}

// Revision returns the workspace revision number resolved during Discover.
func (c *SVNCrawler) Revision() string {
	return c.revision
}

// Cleanup is a no-op: the working copy is left on disk for the next
// incremental update.
func (c *SVNCrawler) Cleanup(ctx context.Context) error {
	return nil
}

var _ Crawler = (*SVNCrawler)(nil)
