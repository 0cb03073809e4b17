// Package scheduler holds one cron timer per repository with a non-empty
// schedule, ticking crawls via the supervisor (spec.md §4.8, component
// C8).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// Starter is the supervisor's start-side capability the scheduler depends
// on.
type Starter interface {
	Start(ctx context.Context, id uuid.UUID) (domain.CrawlProgress, error)
}

// Scheduler wraps a robfig/cron/v3.Cron, tracking each repository's entry
// so a schedule edit can remove and re-add the right timer.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter

	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID
}

// New constructs a Scheduler. The 5-field (minute hour dom month dow)
// parser matches spec.md §4.8's cron syntax.
func New(starter Starter) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		starter: starter,
		entries: make(map[uuid.UUID]cron.EntryID),
	}
}

// Start begins running scheduled ticks. Safe to call once at startup.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts future ticks and waits for any running tick handler to
// finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reload installs (or replaces) repo's timer according to its current
// Schedule. An empty schedule removes any existing timer.
func (s *Scheduler) Reload(repo *domain.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[repo.ID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, repo.ID)
	}

	if repo.Schedule == "" || !repo.Enabled {
		return nil
	}

	id := repo.ID
	entryID, err := s.cron.AddFunc(repo.Schedule, func() {
		s.tick(id)
	})
	if err != nil {
		return err
	}
	s.entries[repo.ID] = entryID
	return nil
}

// Cancel removes repo's timer, if any (called on repository deletion).
func (s *Scheduler) Cancel(repositoryID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[repositoryID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, repositoryID)
	}
}

func (s *Scheduler) tick(repositoryID uuid.UUID) {
	_, err := s.starter.Start(context.Background(), repositoryID)
	if err == nil || errors.Is(err, apperr.ErrAlreadyRunning) {
		return
	}
	slog.Warn("scheduled crawl failed to start", "repository_id", repositoryID, "error", err)
}
