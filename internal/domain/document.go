package domain

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Field name limits enforced before a document is handed to the index
// (spec.md §3, IndexedFile invariants).
const (
	MaxPathLen    = 4096
	MaxNameLen    = 255
	MaxContentLen = 10 << 20 // 10 MiB
)

// EmptyExtensionLabel is the sentinel facet value standing in for the
// empty-string extension (spec.md §4.7).
const EmptyExtensionLabel = "empty"

// IndexedFile is a single point in the inverted index.
type IndexedFile struct {
	ID           string
	RepositoryID uuid.UUID
	Project      string
	Version      string
	Path         string
	Name         string
	Extension    string
	Size         int64
	Content      string
	LastAuthor   string
	LastModified *int64 // unix seconds, optional
}

// DocumentID deterministically derives a document id from the fields that
// uniquely identify it (spec.md §3, property 3 in §8): the same
// (repository_id, project, version, path) tuple always yields the same id,
// stable across runs and across implementations of this spec.
func DocumentID(repositoryID uuid.UUID, project, version, path string) string {
	h := sha256.New()
	h.Write(repositoryID[:])
	h.Write([]byte{0})
	h.Write([]byte(project))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write([]byte(path))
	return hex.EncodeToString(h.Sum(nil))
}

// FacetValue is a (value, count) pair emitted by the facet engine.
type FacetValue struct {
	Value string
	Count int
}
