// Package index wraps one bleve.Index per repository plus a shared
// bleve.IndexAlias that fans reads across all of them (spec.md §4.5,
// component C5).
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	bleveIndex "github.com/blevesearch/bleve/v2/index"
	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// Manager owns every repository's physical bleve index plus the read
// alias. All alias mutations are serialized under mu, matching spec.md
// §5's "the index alias is the only shared writable resource" rule.
type Manager struct {
	dataDir string
	prefix  string

	mu      sync.Mutex
	alias   bleve.IndexAlias
	indices map[uuid.UUID]bleve.Index // active physical index per repository
	names   map[uuid.UUID]string      // active physical index directory name per repository
}

// NewManager prepares the data directory and an empty read alias.
// Existing physical indices are attached lazily via Open.
func NewManager(dataDir, prefix string) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Manager{
		dataDir: dataDir,
		prefix:  prefix,
		alias:   bleve.NewIndexAlias(),
		indices: make(map[uuid.UUID]bleve.Index),
		names:   make(map[uuid.UUID]string),
	}, nil
}

// Alias exposes the shared read alias to the search and facet engines
// (C6, C7).
func (m *Manager) Alias() bleve.Index {
	return m.alias
}

// Open attaches repositoryID's existing physical index to the alias, if
// one is found on disk. A repository with no physical index yet (never
// crawled) is a no-op; its first crawl allocates one via NewGeneration.
func (m *Manager) Open(repositoryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.indices[repositoryID]; ok {
		return nil
	}

	dirName, err := m.findExistingIndexDir(repositoryID)
	if err != nil {
		return err
	}
	if dirName == "" {
		return nil
	}

	idx, err := bleve.Open(filepath.Join(m.dataDir, dirName))
	if err != nil {
		return fmt.Errorf("%w: open index %s: %v", apperr.ErrIO, dirName, err)
	}
	m.indices[repositoryID] = idx
	m.names[repositoryID] = dirName
	m.alias.Add(idx)
	return nil
}

func (m *Manager) findExistingIndexDir(repositoryID uuid.UUID) (string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read data dir: %v", apperr.ErrIO, err)
	}
	id := repositoryID.String()
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), id) {
			return e.Name(), nil
		}
	}
	return "", nil
}

// NewGeneration allocates a fresh physical index for repositoryID, named
// <prefix>-<repoName>-<repoID>-<generation>. The new index is not yet
// exposed through the alias; call Commit after a successful crawl or
// Discard after a failed one (spec.md §4.5's reset protocol).
func (m *Manager) NewGeneration(repositoryID uuid.UUID, repoName string, generation int64) (*Generation, error) {
	dirName := fmt.Sprintf("%s-%s-%s-%d", m.prefix, repoName, repositoryID, generation)
	im, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}
	idx, err := bleve.New(filepath.Join(m.dataDir, dirName), im)
	if err != nil {
		return nil, fmt.Errorf("%w: create index %s: %v", apperr.ErrIO, dirName, err)
	}
	return &Generation{
		manager:      m,
		repositoryID: repositoryID,
		dirName:      dirName,
		index:        idx,
	}, nil
}

// commit swaps gen into the alias in place of repositoryID's previous
// generation, then deletes the old physical index (spec.md §4.5 step 3).
func (m *Manager) commit(gen *Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.indices[gen.repositoryID]
	oldName := m.names[gen.repositoryID]

	m.alias.Add(gen.index)
	if old != nil {
		m.alias.Remove(old)
	}

	m.indices[gen.repositoryID] = gen.index
	m.names[gen.repositoryID] = gen.dirName

	if old != nil {
		_ = old.Close()
		_ = os.RemoveAll(filepath.Join(m.dataDir, oldName))
	}
	return nil
}

// discard closes and removes gen's physical index without ever exposing it
// through the alias (spec.md §4.5 step 4: "the old index is never left
// dangling" applies symmetrically to an aborted new one).
func (m *Manager) discard(gen *Generation) error {
	_ = gen.index.Close()
	return os.RemoveAll(filepath.Join(m.dataDir, gen.dirName))
}

// Drop removes repositoryID's physical index from the shared alias,
// closes it, and deletes its directory. A repository with no attached
// index (never crawled) is a no-op (spec.md §4.1: deleting a repository
// signals C5 to drop its index).
func (m *Manager) Drop(repositoryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.indices[repositoryID]
	if !ok {
		return nil
	}
	dirName := m.names[repositoryID]

	m.alias.Remove(idx)
	delete(m.indices, repositoryID)
	delete(m.names, repositoryID)

	_ = idx.Close()
	if err := os.RemoveAll(filepath.Join(m.dataDir, dirName)); err != nil {
		return fmt.Errorf("%w: remove index %s: %v", apperr.ErrIO, dirName, err)
	}
	return nil
}

// GetFile fetches a single document's full content by id (spec.md §6,
// GET /files/{id}).
func (m *Manager) GetFile(id string) (*domain.IndexedFile, error) {
	d, err := m.alias.Document(id)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch document %s: %v", apperr.ErrIO, id, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: document %s", apperr.ErrNotFound, id)
	}

	f := &domain.IndexedFile{ID: id}
	d.VisitFields(func(field bleveIndex.Field) {
		switch field.Name() {
		case "repository_id_exact":
			f.RepositoryID, _ = uuid.Parse(string(field.Value()))
		case "project_exact":
			f.Project = string(field.Value())
		case "version_exact":
			f.Version = string(field.Value())
		case "extension_exact":
			f.Extension = string(field.Value())
		case "path":
			f.Path = string(field.Value())
		case "name":
			f.Name = string(field.Value())
		case "content":
			f.Content = string(field.Value())
		case "last_author":
			f.LastAuthor = string(field.Value())
		case "size":
			if n, ok := field.(interface{ Number() (float64, error) }); ok {
				if v, err := n.Number(); err == nil {
					f.Size = int64(v)
				}
			}
		}
	})
	return f, nil
}

// Close releases every physical index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range m.indices {
		_ = idx.Close()
	}
	return nil
}
