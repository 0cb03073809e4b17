// Package orchestrator wires a repository's crawler variant, the
// ingestion pipeline, and an index generation into a single run,
// implementing supervisor.CrawlRunner (spec.md §4.2/§4.3/§4.4/§4.5
// end-to-end).
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/klask-io/klask-io-sub002/internal/crawler"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/index"
	"github.com/klask-io/klask-io-sub002/internal/ingestion"
	"github.com/klask-io/klask-io-sub002/internal/supervisor"
)

// RevisionRecorder persists a repository's last_indexed_revision after a
// successful crawl. Implemented by registry.Service.
type RevisionRecorder interface {
	RecordRevision(ctx context.Context, repositoryID uuid.UUID, revision string) error
}

// FacetInvalidator is notified after a successful commit so cached static
// facets reflect the new generation (spec.md §4.7).
type FacetInvalidator interface {
	Invalidate()
}

// Runner constructs the right crawler for a repository's kind and drives
// it through the ingestion pipeline into a fresh index generation. It
// implements supervisor.CrawlRunner.
type Runner struct {
	Manager         *index.Manager
	Registry        RevisionRecorder
	Facets          FacetInvalidator
	WorkingDir      string
	CloneTimeout    time.Duration
	IngestionConfig func(repo *domain.Repository) ingestion.Config

	// indexSem bounds how many repositories write to their index
	// concurrently, independent of how many are crawling (spec.md §5:
	// "multiple repositories index in parallel up to P_INDEX"). Crawling
	// itself (Discover/NextBatch) is unbounded here since the
	// supervisor's own P_CRAWL semaphore already bounds whole crawls.
	indexSemOnce sync.Once
	indexSem     *semaphore.Weighted
	PIndex       int
}

var nowFunc = time.Now

func (r *Runner) semaphoreForIndexing() *semaphore.Weighted {
	r.indexSemOnce.Do(func() {
		n := r.PIndex
		if n <= 0 {
			n = runtime.NumCPU()
		}
		r.indexSem = semaphore.NewWeighted(int64(n))
	})
	return r.indexSem
}

// Run builds the crawler for repo.Kind, discovers, streams files through
// the ingestion pipeline into a fresh index generation, and commits on
// success or discards on failure/cancellation.
func (r *Runner) Run(ctx context.Context, repo *domain.Repository, publish func(domain.CrawlProgress)) error {
	c, err := r.buildCrawler(repo)
	if err != nil {
		return fmt.Errorf("build crawler: %w", err)
	}
	defer c.Cleanup(context.Background())

	progress := domain.CrawlProgress{RepositoryID: repo.ID, StartedAt: nowFunc(), UpdatedAt: nowFunc()}
	publish(withPhase(progress, domain.PhaseCloning))

	total, err := c.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	progress.FilesTotal = total

	gen, err := r.Manager.NewGeneration(repo.ID, repo.Name, nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("allocate index generation: %w", err)
	}

	pipeline := ingestion.NewPipeline(r.ingestionConfig(repo), gen)
	items, crawlErrs := c.NextBatch(ctx)

	onProgress := func(path string, indexed bool) {
		progress.CurrentFile = path
		progress.FilesProcessed++
		if indexed {
			progress.FilesIndexed++
		}
		if hc, ok := c.(crawler.Hierarchical); ok {
			processed, total, project, curProcessed, curTotal := hc.ProjectProgress()
			progress.ProjectsProcessed = processed
			progress.ProjectsTotal = total
			progress.CurrentProject = project
			progress.CurrentProjectFilesProcessed = curProcessed
			progress.CurrentProjectFilesTotal = curTotal
		}
		publish(withPhase(progress, domain.PhaseProcessing))
	}

	sem := r.semaphoreForIndexing()
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	_, runErr := pipeline.Run(ctx, repo.ID, items, onProgress)
	sem.Release(1)

	if runErr == nil {
		select {
		case err := <-crawlErrs:
			runErr = err
		default:
		}
	}

	if runErr != nil {
		_ = gen.Discard()
		return runErr
	}

	publish(withPhase(progress, domain.PhaseIndexing))
	if err := gen.Commit(); err != nil {
		return fmt.Errorf("commit index generation: %w", err)
	}
	r.Facets.Invalidate()

	if err := r.Registry.RecordRevision(context.Background(), repo.ID, c.Revision()); err != nil {
		return fmt.Errorf("record revision: %w", err)
	}
	return nil
}

func withPhase(p domain.CrawlProgress, phase domain.Phase) domain.CrawlProgress {
	p.Phase = phase
	p.UpdatedAt = nowFunc()
	return p
}

func (r *Runner) ingestionConfig(repo *domain.Repository) ingestion.Config {
	if r.IngestionConfig != nil {
		return r.IngestionConfig(repo)
	}
	cfg := ingestion.DefaultConfig()
	cfg.Filter = ingestion.FilterConfig{
		DirectoriesToExclude: repo.DirectoriesToExclude,
		FilesToExclude:       repo.FilesToExclude,
		ExtensionsToExclude:  repo.ExtensionsToExclude,
		MimesToExclude:       repo.MimesToExclude,
		MaxFileSize:          repo.MaxFileSize,
	}
	return cfg
}

func (r *Runner) buildCrawler(repo *domain.Repository) (crawler.Crawler, error) {
	workspace := filepath.Join(r.WorkingDir, repo.ID.String())

	switch repo.Kind {
	case domain.KindFilesystem:
		revision := repo.LastIndexedRevision
		if revision == "" {
			revision = "HEAD"
		}
		return crawler.NewFilesystemCrawler(repo.Name, repo.Location, revision), nil

	case domain.KindGit:
		return crawler.NewGitCrawler(repo.Name, repo.Location, "", workspace, repo.Credentials, r.CloneTimeout), nil

	case domain.KindGitlabGroup:
		baseURL, groupPath, err := splitGitlabLocation(repo.Location)
		if err != nil {
			return nil, err
		}
		return crawler.NewGitlabGroupCrawler(repo.Name, baseURL, groupPath, workspace, repo.Credentials)

	case domain.KindSVN:
		return crawler.NewSVNCrawler(repo.Name, repo.Location, workspace, repo.Credentials), nil

	default:
		return nil, fmt.Errorf("unsupported repository kind %q", repo.Kind)
	}
}

// splitGitlabLocation splits a GitLab group URL (e.g.
// "https://gitlab.example.com/parent/child") into its base URL
// ("https://gitlab.example.com") and group path ("parent/child").
func splitGitlabLocation(location string) (baseURL, groupPath string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse gitlab group location %q: %w", location, err)
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	return base.String(), strings.Trim(u.Path, "/"), nil
}

var _ supervisor.CrawlRunner = (*Runner)(nil)
