package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (f *fakeStarter) Start(ctx context.Context, id uuid.UUID) (domain.CrawlProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return domain.CrawlProgress{}, f.err
	}
	return domain.CrawlProgress{RepositoryID: id}, nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestReload_SkipsDisabledRepository(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter)
	repo := &domain.Repository{ID: uuid.New(), Schedule: "* * * * *", Enabled: false}

	if err := s.Reload(repo); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(s.entries) != 0 {
		t.Errorf("expected no entry for a disabled repository, got %d", len(s.entries))
	}
}

func TestReload_SkipsEmptySchedule(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter)
	repo := &domain.Repository{ID: uuid.New(), Schedule: "", Enabled: true}

	if err := s.Reload(repo); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(s.entries) != 0 {
		t.Errorf("expected no entry for an empty schedule, got %d", len(s.entries))
	}
}

func TestReload_InstallsEntryForEnabledSchedule(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter)
	repo := &domain.Repository{ID: uuid.New(), Schedule: "*/5 * * * *", Enabled: true}

	if err := s.Reload(repo); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := s.entries[repo.ID]; !ok {
		t.Error("expected an entry to be installed")
	}
}

func TestReload_RejectsInvalidSchedule(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter)
	repo := &domain.Repository{ID: uuid.New(), Schedule: "not a cron", Enabled: true}

	if err := s.Reload(repo); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
}

func TestReload_ReplacesExistingEntry(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter)
	id := uuid.New()
	first := &domain.Repository{ID: id, Schedule: "*/5 * * * *", Enabled: true}
	second := &domain.Repository{ID: id, Schedule: "*/10 * * * *", Enabled: true}

	if err := s.Reload(first); err != nil {
		t.Fatalf("Reload first: %v", err)
	}
	firstEntry := s.entries[id]

	if err := s.Reload(second); err != nil {
		t.Fatalf("Reload second: %v", err)
	}
	if s.entries[id] == firstEntry {
		t.Error("expected a fresh cron entry after reschedule")
	}
	if len(s.entries) != 1 {
		t.Errorf("expected exactly 1 entry, got %d", len(s.entries))
	}
}

func TestCancel_RemovesEntry(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter)
	repo := &domain.Repository{ID: uuid.New(), Schedule: "*/5 * * * *", Enabled: true}
	if err := s.Reload(repo); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	s.Cancel(repo.ID)
	if _, ok := s.entries[repo.ID]; ok {
		t.Error("expected entry to be removed after Cancel")
	}
}

func TestCancel_IsNoopForUnknownRepository(t *testing.T) {
	s := New(&fakeStarter{})
	s.Cancel(uuid.New())
}

func TestTick_SwallowsAlreadyRunning(t *testing.T) {
	starter := &fakeStarter{err: apperr.ErrAlreadyRunning}
	s := New(starter)
	id := uuid.New()

	s.tick(id)

	if starter.count() != 1 {
		t.Fatalf("expected exactly 1 start attempt, got %d", starter.count())
	}
}

func TestStart_AllowsDoubleStartWithoutPanic(t *testing.T) {
	s := New(&fakeStarter{})
	s.Start()
	s.Start()
	defer s.Stop()
	time.Sleep(time.Millisecond)
}
