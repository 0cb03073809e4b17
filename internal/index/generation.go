package index

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/ingestion"
)

// Generation is a single crawl's write target: a freshly allocated
// physical index not yet visible through the shared alias. It implements
// ingestion.Writer.
type Generation struct {
	manager      *Manager
	repositoryID uuid.UUID
	dirName      string
	index        bleve.Index
}

// WriteBatch writes docs into this generation's physical index as one
// atomic bleve.Batch (spec.md §4.4: "each batch is handed to C5 as a
// single atomic write").
func (g *Generation) WriteBatch(ctx context.Context, repositoryID uuid.UUID, docs []domain.IndexedFile) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	batch := g.index.NewBatch()
	for _, f := range docs {
		if err := batch.Index(f.ID, toDoc(f)); err != nil {
			return fmt.Errorf("%w: encode document %s: %v", apperr.ErrIO, f.ID, err)
		}
	}
	if err := g.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: write batch: %v", apperr.ErrIO, err)
	}
	return nil
}

// Commit publishes this generation through the shared alias, retiring the
// repository's previous generation.
func (g *Generation) Commit() error {
	return g.manager.commit(g)
}

// Discard drops this generation without ever publishing it.
func (g *Generation) Discard() error {
	return g.manager.discard(g)
}

var _ ingestion.Writer = (*Generation)(nil)
