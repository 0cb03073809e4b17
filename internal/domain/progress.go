package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase is a point in a crawl's lifecycle. Transitions are monotonic along
// the state machine documented in spec.md §4.2.
type Phase string

const (
	PhaseStarting  Phase = "STARTING"
	PhaseCloning   Phase = "CLONING"
	PhaseProcessing Phase = "PROCESSING"
	PhaseIndexing  Phase = "INDEXING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseFailed    Phase = "FAILED"
	PhaseCancelled Phase = "CANCELLED"
)

// Terminal reports whether p is one of the phases a crawl does not leave.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// CrawlProgress is the ephemeral per-repository snapshot published while a
// crawl runs (spec.md §3, §4.9).
type CrawlProgress struct {
	RepositoryID  uuid.UUID
	Phase         Phase
	FilesProcessed int
	FilesTotal     *int
	FilesIndexed   int
	CurrentFile    string
	ErrorMessage   string

	// Populated only for GITLAB_GROUP crawls.
	ProjectsProcessed             int
	ProjectsTotal                 int
	CurrentProject                string
	CurrentProjectFilesProcessed  int
	CurrentProjectFilesTotal      int

	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Clone returns a deep-enough copy safe to hand to a reader without
// sharing mutable state with the writer.
func (p CrawlProgress) Clone() CrawlProgress {
	out := p
	if p.FilesTotal != nil {
		v := *p.FilesTotal
		out.FilesTotal = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		out.CompletedAt = &v
	}
	return out
}
