// Package supervisor owns the per-repository crawl state machine: start,
// stop, reset, bulk, and active (spec.md §4.2, component C2).
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/progress"
)

// CrawlRunner executes one repository's crawl end to end (crawler
// discovery + ingestion + index generation commit), reporting progress
// through the given publish function as it goes. Implemented by the
// composition root's crawl orchestration, kept here as a narrow interface
// so the supervisor never imports crawler/ingestion/index directly.
type CrawlRunner interface {
	Run(ctx context.Context, repo *domain.Repository, publish func(domain.CrawlProgress)) error
}

// RepositoryLookup resolves a repository definition by id. Implemented by
// registry.Service.
type RepositoryLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Repository, error)
}

const defaultGracePeriod = 30 * time.Second

// crawlTask is the live handle for one repository's in-flight crawl.
type crawlTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor implements registry.ActiveChecker and drives crawls via a
// CrawlRunner.
type Supervisor struct {
	lookup RepositoryLookup
	runner CrawlRunner
	bus    *progress.Bus
	grace  time.Duration
	pBulk  int64
	crawls *semaphore.Weighted

	mu    sync.Mutex
	tasks map[uuid.UUID]*crawlTask
}

// New constructs a Supervisor. grace, pBulk, and pCrawl take spec.md
// §4.2/§5 defaults (30s, 4, #CPU) when zero or negative. pCrawl bounds
// the number of crawls running concurrently across all repositories
// (spec.md §5: "at most P_CRAWL concurrent crawls globally").
func New(lookup RepositoryLookup, runner CrawlRunner, bus *progress.Bus, grace time.Duration, pBulk, pCrawl int) *Supervisor {
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	if pBulk <= 0 {
		pBulk = 4
	}
	if pCrawl <= 0 {
		pCrawl = runtime.NumCPU()
	}
	return &Supervisor{
		lookup: lookup,
		runner: runner,
		bus:    bus,
		grace:  grace,
		pBulk:  int64(pBulk),
		crawls: semaphore.NewWeighted(int64(pCrawl)),
		tasks:  make(map[uuid.UUID]*crawlTask),
	}
}

// IsActive implements registry.ActiveChecker.
func (s *Supervisor) IsActive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Start spawns a worker for id unless one is already running, in which
// case it returns apperr.ErrAlreadyRunning and the current snapshot.
func (s *Supervisor) Start(ctx context.Context, id uuid.UUID) (domain.CrawlProgress, error) {
	s.mu.Lock()
	if _, ok := s.tasks[id]; ok {
		s.mu.Unlock()
		snap, _ := s.bus.Get(id)
		return snap, apperr.ErrAlreadyRunning
	}

	repo, err := s.lookup.Get(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return domain.CrawlProgress{}, err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	if repo.MaxCrawlDuration > 0 {
		workerCtx, cancel = context.WithTimeout(workerCtx, repo.MaxCrawlDuration)
	}
	task := &crawlTask{cancel: cancel, done: make(chan struct{})}
	s.tasks[id] = task
	s.mu.Unlock()

	now := time.Now()
	starting := domain.CrawlProgress{
		RepositoryID: id,
		Phase:        domain.PhaseStarting,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	s.bus.Publish(starting)

	go s.run(workerCtx, task, repo)

	return starting, nil
}

func (s *Supervisor) run(ctx context.Context, task *crawlTask, repo *domain.Repository) {
	defer close(task.done)
	defer func() {
		s.mu.Lock()
		delete(s.tasks, repo.ID)
		s.mu.Unlock()
	}()

	var err error
	if acqErr := s.crawls.Acquire(ctx, 1); acqErr != nil {
		err = acqErr
	} else {
		defer s.crawls.Release(1)
		err = s.runner.Run(ctx, repo, s.bus.Publish)
	}

	now := time.Now()
	final := domain.CrawlProgress{
		RepositoryID: repo.ID,
		StartedAt:    now,
		UpdatedAt:    now,
		CompletedAt:  &now,
	}
	switch {
	case errors.Is(err, context.Canceled):
		final.Phase = domain.PhaseCancelled
	case err != nil:
		final.Phase = domain.PhaseFailed
		final.ErrorMessage = err.Error()
		slog.Error("crawl failed", "repository_id", repo.ID, "error", err)
	default:
		final.Phase = domain.PhaseCompleted
	}
	s.bus.Publish(final)
}

// Stop requests cooperative cancellation for id. If the worker has not
// reached a terminal phase within the supervisor's grace period, its
// context is already cancelled (force-cancel is the same signal; grace
// only bounds how long callers wait here, not how long the worker may
// run).
func (s *Supervisor) Stop(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}

	task.cancel()

	select {
	case <-task.done:
		return nil
	case <-time.After(s.grace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset is stop+wait+start: it cancels any active crawl for id, waits for
// it to finish, then starts a fresh one. Index rebuild-under-new-name is
// the CrawlRunner's responsibility (it always writes into a fresh
// generation and commits atomically at the end).
func (s *Supervisor) Reset(ctx context.Context, id uuid.UUID) (domain.CrawlProgress, error) {
	s.mu.Lock()
	task, active := s.tasks[id]
	s.mu.Unlock()
	if active {
		task.cancel()
		select {
		case <-task.done:
		case <-ctx.Done():
			return domain.CrawlProgress{}, ctx.Err()
		}
	}
	return s.Start(ctx, id)
}

// BulkResult aggregates a bulk operation's outcome.
type BulkResult struct {
	Started              []uuid.UUID
	SkippedAlreadyRunning []uuid.UUID
	Failed               map[uuid.UUID]error
}

// Bulk fans out Start across ids, bounded to at most P_BULK concurrent
// starts.
func (s *Supervisor) Bulk(ctx context.Context, ids []uuid.UUID) BulkResult {
	result := BulkResult{Failed: make(map[uuid.UUID]error)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(s.pBulk)

	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Failed[id] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			defer sem.Release(1)

			_, err := s.Start(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, apperr.ErrAlreadyRunning):
				result.SkippedAlreadyRunning = append(result.SkippedAlreadyRunning, id)
			case err != nil:
				result.Failed[id] = err
			default:
				result.Started = append(result.Started, id)
			}
		}(id)
	}
	wg.Wait()
	return result
}

// Active returns every repository's CrawlProgress currently in a
// non-terminal phase.
func (s *Supervisor) Active() []domain.CrawlProgress {
	return s.bus.Active()
}
