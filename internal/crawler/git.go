package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// GitCrawler clones (or fetches/resets an existing workspace for) a single
// Git repository and walks the checked-out tree of the configured
// branch/tag (spec.md §4.3).
type GitCrawler struct {
	RepositoryName string
	CloneURL       string
	Branch         string // branch or tag label; "" => remote HEAD
	WorkspaceDir   string // <working_dir>/<repo_id>
	Credentials    *domain.Credentials
	CloneTimeout   time.Duration

	repo       *git.Repository
	commitHash string
	shortCircuited bool
}

// NewGitCrawler constructs a GitCrawler.
func NewGitCrawler(repositoryName, cloneURL, branch, workspaceDir string, creds *domain.Credentials, cloneTimeout time.Duration) *GitCrawler {
	return &GitCrawler{
		RepositoryName: repositoryName,
		CloneURL:       cloneURL,
		Branch:         branch,
		WorkspaceDir:   workspaceDir,
		Credentials:    creds,
		CloneTimeout:   cloneTimeout,
	}
}

func (c *GitCrawler) auth() *http.BasicAuth {
	if c.Credentials == nil || c.Credentials.Secret == "" {
		return nil
	}
	username := c.Credentials.Username
	if username == "" {
		username = "token"
	}
	return &http.BasicAuth{Username: username, Password: c.Credentials.Secret}
}

// Discover clones a fresh workspace, or fetches and resets an existing
// one. If the existing workspace's recorded revision equals the remote
// HEAD, the crawl short-circuits: Discover returns a total of 0 and
// NextBatch will yield nothing (spec.md §4.3).
func (c *GitCrawler) Discover(ctx context.Context) (*int, error) {
	ctx, cancel := context.WithTimeout(ctx, nonZero(c.CloneTimeout, 10*time.Minute))
	defer cancel()

	if _, err := os.Stat(filepath.Join(c.WorkspaceDir, ".git")); err == nil {
		repo, err := git.PlainOpen(c.WorkspaceDir)
		if err != nil {
			return nil, fmt.Errorf("open existing workspace: %w", err)
		}
		c.repo = repo
		if err := c.fetchAndReset(ctx); err != nil {
			return nil, err
		}
	} else {
		repo, err := git.PlainCloneContext(ctx, c.WorkspaceDir, false, &git.CloneOptions{
			URL:           c.CloneURL,
			Auth:          authOrNil(c.auth()),
			ReferenceName: c.referenceName(),
			SingleBranch:  true,
			Depth:         1,
		})
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", c.CloneURL, err)
		}
		c.repo = repo
	}

	head, err := c.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	c.commitHash = head.Hash().String()

	if c.shortCircuited {
		zero := 0
		return &zero, nil
	}

	total, err := c.countFiles(ctx)
	if err != nil {
		return nil, err
	}
	return &total, nil
}

func (c *GitCrawler) fetchAndReset(ctx context.Context) error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	err = c.repo.FetchContext(ctx, &git.FetchOptions{
		Auth:  authOrNil(c.auth()),
		Force: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}

	remoteRef, err := c.repo.Reference(plumbing.NewRemoteReferenceName("origin", c.branchOrDefault()), true)
	if err != nil {
		return fmt.Errorf("resolve remote ref: %w", err)
	}

	if head, headErr := c.repo.Head(); headErr == nil && head.Hash() == remoteRef.Hash() {
		c.shortCircuited = true
		return nil
	}

	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to %s: %w", remoteRef.Hash(), err)
	}
	return nil
}

func (c *GitCrawler) referenceName() plumbing.ReferenceName {
	if c.Branch == "" {
		return ""
	}
	return plumbing.NewBranchReferenceName(c.Branch)
}

func (c *GitCrawler) branchOrDefault() string {
	if c.Branch == "" {
		return "HEAD"
	}
	return c.Branch
}

func (c *GitCrawler) countFiles(ctx context.Context) (int, error) {
	head, err := c.repo.Head()
	if err != nil {
		return 0, err
	}
	commit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return 0, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return 0, err
	}
	count := 0
	err = tree.Files().ForEach(func(f *object.File) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		count++
		return nil
	})
	return count, err
}

// NextBatch walks the git tree at HEAD, yielding every blob as a FileItem.
func (c *GitCrawler) NextBatch(ctx context.Context) (<-chan FileItem, <-chan error) {
	items := make(chan FileItem, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		if c.shortCircuited || c.repo == nil {
			return
		}

		head, err := c.repo.Head()
		if err != nil {
			errs <- fmt.Errorf("resolve HEAD: %w", err)
			return
		}
		commit, err := c.repo.CommitObject(head.Hash())
		if err != nil {
			errs <- fmt.Errorf("load commit: %w", err)
			return
		}
		tree, err := commit.Tree()
		if err != nil {
			errs <- fmt.Errorf("load tree: %w", err)
			return
		}

		err = tree.Files().ForEach(func(f *object.File) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			contents, readErr := f.Contents()
			if readErr != nil {
				// Per-file read errors are recovered, not fatal.
				return nil
			}

			select {
			case items <- FileItem{
				Project:  c.RepositoryName,
				Version:  c.branchOrDefault(),
				Path:     f.Name,
				Bytes:    []byte(contents),
				Size:     f.Size,
				Author:   commit.Author.Name,
				Modified: &commit.Author.When,
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

// Revision returns the commit hash resolved during Discover.
func (c *GitCrawler) Revision() string {
	return c.commitHash
}

// Cleanup releases the underlying go-git repository handle. The on-disk
// workspace under WorkspaceDir is intentionally left in place so the next
// crawl can fetch instead of cloning fresh.
func (c *GitCrawler) Cleanup(ctx context.Context) error {
	c.repo = nil
	return nil
}

func authOrNil(a *http.BasicAuth) *http.BasicAuth {
	if a == nil {
		return nil
	}
	return a
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

var _ Crawler = (*GitCrawler)(nil)
