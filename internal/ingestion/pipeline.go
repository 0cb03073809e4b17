// Package ingestion turns a crawler's raw FileItem stream into batches of
// domain.IndexedFile documents, applying the filter chain, charset
// decoding, and batched, retried writes to the index manager (spec.md
// §4.4, component C4).
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/crawler"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// Writer is the index manager's write-side capability (implemented by
// internal/index.Generation), kept narrow so ingestion never imports bleve
// directly.
type Writer interface {
	WriteBatch(ctx context.Context, repositoryID uuid.UUID, docs []domain.IndexedFile) error
}

// Config bounds batching and retry behaviour (spec.md §4.4).
type Config struct {
	Filter       FilterConfig
	BatchSize    int
	BatchBytes   int64
	WriteRetries int
}

// Stats summarizes one crawl's pass through the pipeline.
type Stats struct {
	FilesSeen      int
	FilesIndexed   int
	FilesSkipped   int
	BatchesWritten int
}

// Pipeline drives one repository's ingestion for a single crawl.
type Pipeline struct {
	cfg    Config
	writer Writer
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg Config, writer Writer) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = 16 << 20
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = 3
	}
	return &Pipeline{cfg: cfg, writer: writer}
}

// Run consumes items from the crawler until the channel closes or ctx is
// cancelled, filtering, decoding, batching, and writing each accepted
// file. onProgress, if non-nil, is called once for every file, right after
// it is accepted or skipped; batch writes do not call it.
func (p *Pipeline) Run(ctx context.Context, repositoryID uuid.UUID, items <-chan crawler.FileItem, onProgress func(path string, indexed bool)) (Stats, error) {
	var stats Stats
	batch := make([]domain.IndexedFile, 0, p.cfg.BatchSize)
	var batchBytes int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writeWithRetry(ctx, repositoryID, batch); err != nil {
			return err
		}
		stats.FilesIndexed += len(batch)
		stats.BatchesWritten++
		batch = make([]domain.IndexedFile, 0, p.cfg.BatchSize)
		batchBytes = 0
		return nil
	}

	for item := range items {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		stats.FilesSeen++
		doc, accepted := p.accept(repositoryID, item)
		if onProgress != nil {
			onProgress(item.Path, accepted)
		}
		if !accepted {
			stats.FilesSkipped++
			continue
		}

		batch = append(batch, doc)
		batchBytes += int64(len(doc.Content))

		if len(batch) >= p.cfg.BatchSize || batchBytes >= p.cfg.BatchBytes {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// accept runs the filter chain and, if the file is kept, decodes its
// content and builds the IndexedFile.
func (p *Pipeline) accept(repositoryID uuid.UUID, item crawler.FileItem) (domain.IndexedFile, bool) {
	reason := classify(p.cfg.Filter, item.Path, item.Size, item.Bytes)
	if reason != rejectNone {
		return domain.IndexedFile{}, false
	}

	base := filepath.Base(filepath.ToSlash(item.Path))
	ext := extensionOf(base)

	content := decode(item.Bytes)
	if len(content) > domain.MaxContentLen {
		content = content[:domain.MaxContentLen]
	}
	path := truncate(filepath.ToSlash(item.Path), domain.MaxPathLen)
	name := truncate(base, domain.MaxNameLen)

	var lastModified *int64
	if item.Modified != nil {
		unix := item.Modified.Unix()
		lastModified = &unix
	}

	doc := domain.IndexedFile{
		ID:           domain.DocumentID(repositoryID, item.Project, item.Version, path),
		RepositoryID: repositoryID,
		Project:      item.Project,
		Version:      item.Version,
		Path:         path,
		Name:         name,
		Extension:    ext,
		Size:         item.Size,
		Content:      content,
		LastAuthor:   item.Author,
		LastModified: lastModified,
	}
	return doc, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// writeWithRetry retries a batch write with exponential backoff (100ms *
// 2^n, capped at 5s), giving up after the first attempt plus
// cfg.WriteRetries retries (spec.md §4.4).
func (p *Pipeline) writeWithRetry(ctx context.Context, repositoryID uuid.UUID, batch []domain.IndexedFile) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*math.Pow(2, float64(attempt-1))) * time.Millisecond
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			slog.Warn("retrying index batch write", "attempt", attempt, "size", len(batch))
		}

		err := p.writer.WriteBatch(ctx, repositoryID, batch)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: index batch write exhausted %d retries: %v", apperr.ErrIO, p.cfg.WriteRetries, lastErr)
}

// DefaultConfig returns the spec.md §4.4 defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    25,
		BatchBytes:   16 << 20,
		WriteRetries: 3,
	}
}
