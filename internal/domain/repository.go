// Package domain holds the data model shared by every component of the
// search service: repository definitions, indexed documents, and the
// ephemeral progress snapshots published by a running crawl.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which crawler variant owns a repository.
type Kind string

const (
	KindFilesystem   Kind = "FILESYSTEM"
	KindGit          Kind = "GIT"
	KindGitlabGroup  Kind = "GITLAB_GROUP"
	KindSVN          Kind = "SVN"
)

// Valid reports whether k is one of the known repository kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFilesystem, KindGit, KindGitlabGroup, KindSVN:
		return true
	default:
		return false
	}
}

// Credentials holds an optional username/secret pair for remote sources.
// Secret is encrypted at rest by the registry and only ever decrypted
// inside the crawler that needs it.
type Credentials struct {
	Username string
	Secret   string
}

// Repository is a named ingestion source registered with the service.
type Repository struct {
	ID                     uuid.UUID
	Name                   string
	Kind                   Kind
	Location               string
	Credentials            *Credentials
	Schedule               string
	LastIndexedRevision    string
	MaxCrawlDuration       time.Duration
	DirectoriesToExclude   []string
	FilesToExclude         []string
	ExtensionsToExclude    []string
	MimesToExclude         []string
	MaxFileSize            int64
	Enabled                bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// RepositoryFilter narrows List results.
type RepositoryFilter struct {
	Enabled *bool
	Kind    Kind
	Query   string // substring match against name
}

// RepositoryPatch is a partial update to a Repository. Nil fields are left
// untouched. LastIndexedRevision is never part of a patch: it is
// crawler-owned (spec.md §4.1).
type RepositoryPatch struct {
	Name                 *string
	Location             *string
	Credentials          **Credentials
	Schedule             *string
	MaxCrawlDuration     *time.Duration
	DirectoriesToExclude *[]string
	FilesToExclude       *[]string
	ExtensionsToExclude  *[]string
	MimesToExclude       *[]string
	MaxFileSize          *int64
	Enabled              *bool
}
