// Package crawler implements the per-repository crawler variants (spec.md
// §4.3, component C3): filesystem, git, gitlab-group, and svn. All four
// share one capability set so the supervisor never type-switches on a
// concrete crawler type (spec.md §9's redesign note against subclassing).
package crawler

import (
	"context"
	"time"
)

// FileItem is a single file handed from a crawler to the ingestion
// pipeline.
type FileItem struct {
	Project string
	Version string
	Path    string
	Bytes   []byte
	Size    int64

	Author   string
	Modified *time.Time
}

// Crawler is the capability set every repository kind implements.
type Crawler interface {
	// Discover performs any up-front work needed before files can be
	// streamed (clone, checkout, directory stat) and returns a best-effort
	// total file count, or nil if the total is not known up front.
	Discover(ctx context.Context) (total *int, err error)

	// NextBatch streams FileItems on the returned channel until the
	// crawler is exhausted, ctx is cancelled, or an error occurs (sent as
	// the second return's error channel). The channel is closed when
	// enumeration ends for any reason.
	NextBatch(ctx context.Context) (<-chan FileItem, <-chan error)

	// Revision returns the opaque cursor identifying where this crawl
	// left off, valid after NextBatch's channel has closed.
	Revision() string

	// Cleanup releases file handles, network connections, or temporary
	// working copies. Always safe to call, even after an error.
	Cleanup(ctx context.Context) error
}

// Hierarchical is implemented by crawlers that expose nested project
// progress (spec.md §3's projects_* CrawlProgress fields). Only
// GitlabGroupCrawler implements it today.
type Hierarchical interface {
	ProjectProgress() (processed, total int, currentProject string, currentFilesProcessed, currentFilesTotal int)
}
