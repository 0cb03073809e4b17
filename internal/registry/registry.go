// Package registry persists repository definitions — the source of truth
// for which repositories exist (spec.md §4.1, component C1).
package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// Store defines the operations the registry exposes to the rest of the
// core. It is a narrow trait, not an ORM: implementable over SQL or an
// embedded key-value store without behavioral change (spec.md §9).
type Store interface {
	List(ctx context.Context, filter domain.RepositoryFilter) ([]*domain.Repository, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Repository, error)
	GetByName(ctx context.Context, name string) (*domain.Repository, error)
	Create(ctx context.Context, repo *domain.Repository) error
	Update(ctx context.Context, id uuid.UUID, patch domain.RepositoryPatch) (*domain.Repository, error)
	// UpdateRevision is the one mutation the crawler itself is allowed to
	// perform: it records where a successful crawl left off.
	UpdateRevision(ctx context.Context, id uuid.UUID, revision string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
