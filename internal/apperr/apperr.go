// Package apperr defines the error-kind taxonomy shared across the core
// (spec.md §7). Components return these sentinels (wrapped with context
// via fmt.Errorf("%w: ...")) so that the HTTP transport layer, and any
// other caller, can map them to the right status code with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNameTaken is returned when a repository name is already in use.
	ErrNameTaken = errors.New("name already in use")

	// ErrCrawlActive is returned when an operation conflicts with a running
	// crawl for the same repository (e.g. delete while indexing).
	ErrCrawlActive = errors.New("crawl is active")

	// ErrAlreadyRunning is returned by Supervisor.Start when a crawl for
	// the repository is already in flight. It is not a failure: callers
	// are expected to treat it as an idempotent no-op.
	ErrAlreadyRunning = errors.New("crawl already running")

	// ErrValidation wraps malformed input (missing path, bad schedule, ...).
	ErrValidation = errors.New("validation failed")

	// ErrBadQuery is returned when a search query string cannot be parsed.
	ErrBadQuery = errors.New("bad query")

	// ErrBadSchedule is returned when a cron-like schedule string is malformed.
	ErrBadSchedule = errors.New("bad schedule")

	// ErrTimeout groups every structural timeout (clone, read, write, search).
	ErrTimeout = errors.New("timeout")

	// ErrIO groups source-read, index-write, and network I/O failures.
	ErrIO = errors.New("i/o error")

	// ErrUnavailable is returned when a backend (index, database) cannot be
	// reached; callers may retry.
	ErrUnavailable = errors.New("unavailable")

	// ErrCancelled marks a crawl's terminal phase after a stop request. It
	// is a normal outcome, never surfaced as a transport error.
	ErrCancelled = errors.New("cancelled")

	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
)
