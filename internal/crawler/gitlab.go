package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	gitlab "github.com/xanzy/go-gitlab"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// GitlabGroupCrawler discovers every project under a GitLab group
// (recursively, including subgroups) and composes one GitCrawler per
// project, aggregating their progress hierarchically (spec.md §4.3, §3).
type GitlabGroupCrawler struct {
	RepositoryName string
	BaseURL        string
	GroupPath      string
	WorkingDir     string
	Credentials    *domain.Credentials

	client *gitlab.Client

	mu                sync.Mutex
	projects          []*gitlab.Project
	crawlers          []*GitCrawler
	crawlerFileTotals []int // discovered file count per entry in crawlers, parallel slice
	projectsDone      int
	currentProject    string
	currentProcessed  int
	currentFilesTotal int // discovered file count of the project currently being walked
}

// NewGitlabGroupCrawler constructs a GitlabGroupCrawler. creds.Secret, when
// creds is non-nil, is the token that authenticates against the GitLab
// instance at baseURL; an empty token limits discovery to publicly visible
// projects.
func NewGitlabGroupCrawler(repositoryName, baseURL, groupPath, workingDir string, creds *domain.Credentials) (*GitlabGroupCrawler, error) {
	token := ""
	if creds != nil {
		token = creds.Secret
	}
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("build gitlab client: %w", err)
	}
	return &GitlabGroupCrawler{
		RepositoryName: repositoryName,
		BaseURL:        baseURL,
		GroupPath:      groupPath,
		WorkingDir:     workingDir,
		Credentials:    creds,
		client:         client,
	}, nil
}

// Discover paginates every project under GroupPath (including subgroups)
// and returns the total file count across all of them.
func (c *GitlabGroupCrawler) Discover(ctx context.Context) (*int, error) {
	projects, err := c.listProjects(ctx)
	if err != nil {
		return nil, err
	}
	c.projects = projects

	total := 0
	for _, p := range projects {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		gc := NewGitCrawler(
			p.PathWithNamespace,
			cloneURLForProject(p, c.Credentials),
			p.DefaultBranch,
			filepath.Join(c.WorkingDir, fmt.Sprintf("%d", p.ID)),
			c.Credentials,
			0,
		)
		projTotal, err := gc.Discover(ctx)
		if err != nil {
			// A single unreachable project does not abort the whole group;
			// it is simply skipped and its files are not indexed this run.
			continue
		}
		c.crawlers = append(c.crawlers, gc)
		fileTotal := 0
		if projTotal != nil {
			fileTotal = *projTotal
		}
		c.crawlerFileTotals = append(c.crawlerFileTotals, fileTotal)
		total += fileTotal
	}

	return &total, nil
}

func (c *GitlabGroupCrawler) listProjects(ctx context.Context) ([]*gitlab.Project, error) {
	var out []*gitlab.Project
	opts := &gitlab.ListGroupProjectsOptions{
		ListOptions:      gitlab.ListOptions{PerPage: 100, Page: 1},
		IncludeSubGroups: gitlab.Ptr(true),
		Archived:         gitlab.Ptr(false),
	}
	for {
		projects, resp, err := c.client.Groups.ListGroupProjects(c.GroupPath, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w: list group projects: %v", apperr.ErrIO, err)
		}
		out = append(out, projects...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// NextBatch streams files from each project crawler in turn, updating the
// hierarchical progress counters as it goes.
func (c *GitlabGroupCrawler) NextBatch(ctx context.Context) (<-chan FileItem, <-chan error) {
	items := make(chan FileItem, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		for i, gc := range c.crawlers {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			c.mu.Lock()
			c.currentProject = gc.RepositoryName
			c.currentProcessed = 0
			c.currentFilesTotal = c.crawlerFileTotals[i]
			c.mu.Unlock()

			projItems, projErrs := gc.NextBatch(ctx)
			for item := range projItems {
				c.mu.Lock()
				c.currentProcessed++
				c.mu.Unlock()
				select {
				case items <- item:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if err := <-projErrs; err != nil {
				errs <- fmt.Errorf("project %s: %w", gc.RepositoryName, err)
				return
			}

			c.mu.Lock()
			c.projectsDone++
			c.mu.Unlock()
		}
	}()

	return items, errs
}

// ProjectProgress implements Hierarchical.
func (c *GitlabGroupCrawler) ProjectProgress() (processed, total int, currentProject string, currentFilesProcessed, currentFilesTotal int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectsDone, len(c.crawlers), c.currentProject, c.currentProcessed, c.currentFilesTotal
}

// Revision returns a composite revision: the concatenation of every
// project's resolved commit hash, so a single changed project is enough to
// produce a different revision string across crawls.
func (c *GitlabGroupCrawler) Revision() string {
	rev := ""
	for _, gc := range c.crawlers {
		rev += gc.RepositoryName + "@" + gc.Revision() + ";"
	}
	return rev
}

// Cleanup releases every composed project crawler.
func (c *GitlabGroupCrawler) Cleanup(ctx context.Context) error {
	for _, gc := range c.crawlers {
		_ = gc.Cleanup(ctx)
	}
	return nil
}

func cloneURLForProject(p *gitlab.Project, creds *domain.Credentials) string {
	return p.HTTPURLToRepo
}

var (
	_ Crawler      = (*GitlabGroupCrawler)(nil)
	_ Hierarchical = (*GitlabGroupCrawler)(nil)
)
