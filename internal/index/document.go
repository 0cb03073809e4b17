package index

import (
	"github.com/klask-io/klask-io-sub002/internal/domain"
)

// doc is the shape handed to bleve. project/version/extension/repository
// are dual-indexed (spec.md §4.5): the bare field is analyzed for free-text
// search, the "_exact" twin is a raw keyword used for filtering and
// faceting.
type doc struct {
	RepositoryID      string `json:"repository_id"`
	RepositoryExact   string `json:"repository_id_exact"`
	Project           string `json:"project"`
	ProjectExact      string `json:"project_exact"`
	Version           string `json:"version"`
	VersionExact      string `json:"version_exact"`
	Extension         string `json:"extension"`
	ExtensionExact    string `json:"extension_exact"`
	Path              string `json:"path"`
	Name              string `json:"name"`
	NameKeyword       string `json:"name_keyword"`
	Content           string `json:"content"`
	Size              int64  `json:"size"`
	LastAuthor        string `json:"last_author"`
	LastModifiedEpoch *int64 `json:"last_modified_epoch,omitempty"`
}

func toDoc(f domain.IndexedFile) doc {
	return doc{
		RepositoryID:      f.RepositoryID.String(),
		RepositoryExact:   f.RepositoryID.String(),
		Project:           f.Project,
		ProjectExact:      f.Project,
		Version:           f.Version,
		VersionExact:      f.Version,
		Extension:         f.Extension,
		ExtensionExact:    f.Extension,
		Path:              f.Path,
		Name:              f.Name,
		NameKeyword:       f.Name,
		Content:           f.Content,
		Size:              f.Size,
		LastAuthor:        f.LastAuthor,
		LastModifiedEpoch: f.LastModified,
	}
}

// facetFieldNames maps a filter/facet category name (as used by C6/C7 and
// the HTTP surface) to the raw keyword sub-field bleve should facet/filter
// on.
var facetFieldNames = map[string]string{
	"project":    "project_exact",
	"version":    "version_exact",
	"extension":  "extension_exact",
	"repository": "repository_id_exact",
}
