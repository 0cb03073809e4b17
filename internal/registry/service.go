package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// ActiveChecker reports whether a crawl is currently running for a
// repository. The supervisor (C2) implements this; Service depends on the
// narrow interface rather than the supervisor package to avoid an import
// cycle (registry is constructed before the supervisor in the composition
// root, but both are wired together at startup).
type ActiveChecker interface {
	IsActive(id uuid.UUID) bool
}

// SchedulerReloader keeps a repository's cron timer in sync with its
// stored schedule. The scheduler (C8) implements this; Service depends on
// the narrow interface for the same construction-order reason as
// ActiveChecker (spec.md §4.8: schedule edits reload the timer, deletion
// cancels it).
type SchedulerReloader interface {
	Reload(repo *domain.Repository) error
	Cancel(repositoryID uuid.UUID)
}

// IndexDropper removes a repository's physical index once it is deleted
// from the registry (spec.md §4.1: delete signals C5 to drop the index).
type IndexDropper interface {
	Drop(repositoryID uuid.UUID) error
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Service validates writes before delegating to Store, and enforces the
// delete-while-crawling invariant (spec.md §4.1).
type Service struct {
	store     Store
	active    ActiveChecker
	scheduler SchedulerReloader
	index     IndexDropper
}

// NewService builds a registry Service. active may be nil during tests
// that never exercise Delete, or when the supervisor is constructed after
// the registry and wired in later via SetActiveChecker.
func NewService(store Store, active ActiveChecker) *Service {
	return &Service{store: store, active: active}
}

// SetActiveChecker wires the supervisor in after both have been
// constructed, breaking the registry/supervisor construction-order cycle
// in the composition root.
func (s *Service) SetActiveChecker(active ActiveChecker) {
	s.active = active
}

// SetSchedulerReloader wires the scheduler in after both have been
// constructed, for the same reason as SetActiveChecker.
func (s *Service) SetSchedulerReloader(scheduler SchedulerReloader) {
	s.scheduler = scheduler
}

// SetIndexDropper wires the index manager in after both have been
// constructed, for the same reason as SetActiveChecker.
func (s *Service) SetIndexDropper(index IndexDropper) {
	s.index = index
}

func (s *Service) List(ctx context.Context, filter domain.RepositoryFilter) ([]*domain.Repository, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Repository, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (*domain.Repository, error) {
	return s.store.GetByName(ctx, name)
}

// Create validates def and stores it.
func (s *Service) Create(ctx context.Context, def *domain.Repository) (*domain.Repository, error) {
	if err := validate(def.Name, string(def.Kind), def.Location, def.Schedule); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, def); err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Reload(def); err != nil {
			return nil, fmt.Errorf("schedule repository: %w", err)
		}
	}
	return def, nil
}

// Update validates patch and applies it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch domain.RepositoryPatch) (*domain.Repository, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", apperr.ErrValidation)
	}
	if patch.Location != nil && strings.TrimSpace(*patch.Location) == "" {
		return nil, fmt.Errorf("%w: location must not be empty", apperr.ErrValidation)
	}
	if patch.Schedule != nil && *patch.Schedule != "" {
		if _, err := cronParser.Parse(*patch.Schedule); err != nil {
			return nil, fmt.Errorf("%w: invalid schedule %q: %v", apperr.ErrBadSchedule, *patch.Schedule, err)
		}
	}
	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Reload(updated); err != nil {
			return nil, fmt.Errorf("reschedule repository: %w", err)
		}
	}
	return updated, nil
}

// RecordRevision stores the opaque revision cursor a successful crawl left
// off at. Called by the orchestrator, never by HTTP callers directly.
func (s *Service) RecordRevision(ctx context.Context, id uuid.UUID, revision string) error {
	return s.store.UpdateRevision(ctx, id, revision)
}

// Delete rejects the delete with apperr.ErrCrawlActive when a crawl for id
// is currently running.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if s.active != nil && s.active.IsActive(id) {
		return apperr.ErrCrawlActive
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(id)
	}
	if s.index != nil {
		if err := s.index.Drop(id); err != nil {
			return fmt.Errorf("drop index: %w", err)
		}
	}
	return nil
}

func validate(name, kind, location, schedule string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if !domain.Kind(kind).Valid() {
		return fmt.Errorf("%w: unknown repository kind %q", apperr.ErrValidation, kind)
	}
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("%w: location is required", apperr.ErrValidation)
	}
	if schedule != "" {
		if _, err := cronParser.Parse(schedule); err != nil {
			return fmt.Errorf("%w: invalid schedule %q: %v", apperr.ErrBadSchedule, schedule, err)
		}
	}
	return nil
}
