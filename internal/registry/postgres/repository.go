package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/registry"
)

// RepositoryStore implements registry.Store over PostgreSQL.
type RepositoryStore struct {
	db     *DB
	secret *secretBox
}

// NewRepositoryStore creates a new repository store. encryptionKey is the
// base64-encoded 32-byte ENCRYPTION_KEY; an empty key disables credential
// encryption (development only).
func NewRepositoryStore(db *DB, encryptionKey string) (*RepositoryStore, error) {
	s := &RepositoryStore{db: db}
	if encryptionKey != "" {
		box, err := newSecretBox(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("init secret box: %w", err)
		}
		s.secret = box
	}
	return s, nil
}

const repoColumns = `id, name, kind, location, credential_username, credential_secret,
	schedule, last_indexed_revision, max_crawl_duration_ns, directories_to_exclude,
	files_to_exclude, extensions_to_exclude, mimes_to_exclude, max_file_size,
	enabled, created_at, updated_at`

func (s *RepositoryStore) scanRow(row pgx.Row) (*domain.Repository, error) {
	var (
		r                                         domain.Repository
		credUsername, credSecret                  *string
		maxCrawlDurationNS                        int64
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.Kind, &r.Location, &credUsername, &credSecret,
		&r.Schedule, &r.LastIndexedRevision, &maxCrawlDurationNS, &r.DirectoriesToExclude,
		&r.FilesToExclude, &r.ExtensionsToExclude, &r.MimesToExclude, &r.MaxFileSize,
		&r.Enabled, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.MaxCrawlDuration = time.Duration(maxCrawlDurationNS)
	if credUsername != nil || credSecret != nil {
		secret := ""
		if credSecret != nil {
			decrypted, err := s.decrypt(*credSecret)
			if err != nil {
				return nil, fmt.Errorf("decrypt credential secret: %w", err)
			}
			secret = decrypted
		}
		username := ""
		if credUsername != nil {
			username = *credUsername
		}
		r.Credentials = &domain.Credentials{Username: username, Secret: secret}
	}
	return &r, nil
}

func (s *RepositoryStore) encrypt(plaintext string) (string, error) {
	if s.secret == nil {
		return plaintext, nil
	}
	return s.secret.seal(plaintext)
}

func (s *RepositoryStore) decrypt(ciphertext string) (string, error) {
	if s.secret == nil {
		return ciphertext, nil
	}
	return s.secret.open(ciphertext)
}

// List returns all repositories matching filter.
func (s *RepositoryStore) List(ctx context.Context, filter domain.RepositoryFilter) ([]*domain.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE 1=1`
	var args []any

	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		query += fmt.Sprintf(" AND enabled = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Query != "" {
		args = append(args, "%"+strings.ToLower(filter.Query)+"%")
		query += fmt.Sprintf(" AND lower(name) LIKE $%d", len(args))
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list repositories: %v", apperr.ErrIO, err)
	}
	defer rows.Close()

	var out []*domain.Repository
	for rows.Next() {
		r, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan repository: %v", apperr.ErrIO, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get retrieves a repository by id.
func (s *RepositoryStore) Get(ctx context.Context, id uuid.UUID) (*domain.Repository, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+repoColumns+` FROM repositories WHERE id = $1`, id)
	r, err := s.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get repository: %v", apperr.ErrIO, err)
	}
	return r, nil
}

// GetByName retrieves a repository by its unique display name.
func (s *RepositoryStore) GetByName(ctx context.Context, name string) (*domain.Repository, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+repoColumns+` FROM repositories WHERE name = $1`, name)
	r, err := s.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get repository by name: %v", apperr.ErrIO, err)
	}
	return r, nil
}

// Create inserts a new repository, failing with apperr.ErrNameTaken if the
// name already exists.
func (s *RepositoryStore) Create(ctx context.Context, r *domain.Repository) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now

	var credUsername, credSecret *string
	if r.Credentials != nil {
		u := r.Credentials.Username
		credUsername = &u
		encrypted, err := s.encrypt(r.Credentials.Secret)
		if err != nil {
			return fmt.Errorf("%w: encrypt credential secret: %v", apperr.ErrInternal, err)
		}
		credSecret = &encrypted
	}

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO repositories (id, name, kind, location, credential_username, credential_secret,
			schedule, last_indexed_revision, max_crawl_duration_ns, directories_to_exclude,
			files_to_exclude, extensions_to_exclude, mimes_to_exclude, max_file_size,
			enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, r.ID, r.Name, string(r.Kind), r.Location, credUsername, credSecret,
		r.Schedule, r.LastIndexedRevision, int64(r.MaxCrawlDuration), r.DirectoriesToExclude,
		r.FilesToExclude, r.ExtensionsToExclude, r.MimesToExclude, r.MaxFileSize,
		r.Enabled, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrNameTaken
		}
		return fmt.Errorf("%w: create repository: %v", apperr.ErrIO, err)
	}
	return nil
}

// Update applies a partial update, re-checking name uniqueness.
// last_indexed_revision is never touched here: it is crawler-owned.
func (s *RepositoryStore) Update(ctx context.Context, id uuid.UUID, patch domain.RepositoryPatch) (*domain.Repository, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Location != nil {
		current.Location = *patch.Location
	}
	if patch.Credentials != nil {
		current.Credentials = *patch.Credentials
	}
	if patch.Schedule != nil {
		current.Schedule = *patch.Schedule
	}
	if patch.MaxCrawlDuration != nil {
		current.MaxCrawlDuration = *patch.MaxCrawlDuration
	}
	if patch.DirectoriesToExclude != nil {
		current.DirectoriesToExclude = *patch.DirectoriesToExclude
	}
	if patch.FilesToExclude != nil {
		current.FilesToExclude = *patch.FilesToExclude
	}
	if patch.ExtensionsToExclude != nil {
		current.ExtensionsToExclude = *patch.ExtensionsToExclude
	}
	if patch.MimesToExclude != nil {
		current.MimesToExclude = *patch.MimesToExclude
	}
	if patch.MaxFileSize != nil {
		current.MaxFileSize = *patch.MaxFileSize
	}
	if patch.Enabled != nil {
		current.Enabled = *patch.Enabled
	}
	current.UpdatedAt = time.Now()

	var credUsername, credSecret *string
	if current.Credentials != nil {
		u := current.Credentials.Username
		credUsername = &u
		encrypted, err := s.encrypt(current.Credentials.Secret)
		if err != nil {
			return nil, fmt.Errorf("%w: encrypt credential secret: %v", apperr.ErrInternal, err)
		}
		credSecret = &encrypted
	}

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE repositories SET name=$2, location=$3, credential_username=$4, credential_secret=$5,
			schedule=$6, max_crawl_duration_ns=$7, directories_to_exclude=$8, files_to_exclude=$9,
			extensions_to_exclude=$10, mimes_to_exclude=$11, max_file_size=$12, enabled=$13, updated_at=$14
		WHERE id=$1
	`, current.ID, current.Name, current.Location, credUsername, credSecret,
		current.Schedule, int64(current.MaxCrawlDuration), current.DirectoriesToExclude,
		current.FilesToExclude, current.ExtensionsToExclude, current.MimesToExclude,
		current.MaxFileSize, current.Enabled, current.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ErrNameTaken
		}
		return nil, fmt.Errorf("%w: update repository: %v", apperr.ErrIO, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.ErrNotFound
	}
	return current, nil
}

// UpdateRevision records last_indexed_revision after a successful crawl.
func (s *RepositoryStore) UpdateRevision(ctx context.Context, id uuid.UUID, revision string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE repositories SET last_indexed_revision=$2, updated_at=now() WHERE id=$1`,
		id, revision)
	if err != nil {
		return fmt.Errorf("%w: update revision: %v", apperr.ErrIO, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Delete removes a repository. Callers (the supervisor, via the registry
// service layer) are responsible for rejecting deletes of repositories
// with an active crawl before calling this.
func (s *RepositoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete repository: %v", apperr.ErrIO, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value") || strings.Contains(err.Error(), "23505")
}

var _ registry.Store = (*RepositoryStore)(nil)
