package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/facet"
	"github.com/klask-io/klask-io-sub002/internal/search"
)

// RegistryService is the registry capability the HTTP layer depends on.
type RegistryService interface {
	List(ctx context.Context, filter domain.RepositoryFilter) ([]*domain.Repository, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Repository, error)
	Create(ctx context.Context, def *domain.Repository) (*domain.Repository, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.RepositoryPatch) (*domain.Repository, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Supervisor is the crawl-control capability the HTTP layer depends on.
type Supervisor interface {
	Start(ctx context.Context, id uuid.UUID) (domain.CrawlProgress, error)
	Stop(ctx context.Context, id uuid.UUID) error
	Active() []domain.CrawlProgress
}

// ProgressReader exposes per-repository snapshots.
type ProgressReader interface {
	Get(id uuid.UUID) (domain.CrawlProgress, bool)
}

// SearchEngine is the query-side capability the HTTP layer depends on.
type SearchEngine interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// FacetEngine is the facet-side capability the HTTP layer depends on.
type FacetEngine interface {
	All(ctx context.Context) (*facet.Set, error)
	For(ctx context.Context, queryText string, filters search.Filters) (*facet.Set, error)
}

// FileReader fetches a single document's full content by id.
type FileReader interface {
	GetFile(ctx context.Context, id string) (*domain.IndexedFile, error)
}

// Handlers implements every route in spec.md §6.
type Handlers struct {
	Registry RegistryService
	Crawls   Supervisor
	Progress ProgressReader
	Search   SearchEngine
	Facets   FacetEngine
	Files    FileReader
}

type repositoryBody struct {
	Name                 string   `json:"name"`
	Kind                 string   `json:"kind"`
	Location             string   `json:"location"`
	Username             string   `json:"username,omitempty"`
	Secret               string   `json:"secret,omitempty"`
	Schedule             string   `json:"schedule,omitempty"`
	MaxCrawlDurationSecs int64    `json:"max_crawl_duration_seconds,omitempty"`
	DirectoriesToExclude []string `json:"directories_to_exclude,omitempty"`
	FilesToExclude       []string `json:"files_to_exclude,omitempty"`
	ExtensionsToExclude  []string `json:"extensions_to_exclude,omitempty"`
	MimesToExclude       []string `json:"mimes_to_exclude,omitempty"`
	MaxFileSize          int64    `json:"max_file_size,omitempty"`
	Enabled              *bool    `json:"enabled,omitempty"`
}

func repositoryToJSON(r *domain.Repository) map[string]interface{} {
	out := map[string]interface{}{
		"id":                     r.ID,
		"name":                   r.Name,
		"kind":                   string(r.Kind),
		"location":               r.Location,
		"schedule":               r.Schedule,
		"last_indexed_revision":  r.LastIndexedRevision,
		"max_crawl_duration_sec": int64(r.MaxCrawlDuration / time.Second),
		"directories_to_exclude": r.DirectoriesToExclude,
		"files_to_exclude":       r.FilesToExclude,
		"extensions_to_exclude":  r.ExtensionsToExclude,
		"mimes_to_exclude":       r.MimesToExclude,
		"max_file_size":          r.MaxFileSize,
		"enabled":                r.Enabled,
		"created_at":             r.CreatedAt,
		"updated_at":             r.UpdatedAt,
	}
	if r.Credentials != nil {
		out["username"] = r.Credentials.Username
	}
	return out
}

// CreateRepository handles POST /repositories.
func (h *Handlers) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var body repositoryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, withField(apperr.ErrValidation, "body", err.Error()))
		return
	}

	def := &domain.Repository{
		Name:                 body.Name,
		Kind:                 domain.Kind(body.Kind),
		Location:             body.Location,
		Schedule:             body.Schedule,
		MaxCrawlDuration:     time.Duration(body.MaxCrawlDurationSecs) * time.Second,
		DirectoriesToExclude: body.DirectoriesToExclude,
		FilesToExclude:       body.FilesToExclude,
		ExtensionsToExclude:  body.ExtensionsToExclude,
		MimesToExclude:       body.MimesToExclude,
		MaxFileSize:          body.MaxFileSize,
		Enabled:              body.Enabled == nil || *body.Enabled,
	}
	if body.Secret != "" {
		def.Credentials = &domain.Credentials{Username: body.Username, Secret: body.Secret}
	}

	created, err := h.Registry.Create(r.Context(), def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repositoryToJSON(created))
}

// ListRepositories handles GET /repositories?enabled=&kind=&q=.
func (h *Handlers) ListRepositories(w http.ResponseWriter, r *http.Request) {
	filter := domain.RepositoryFilter{
		Kind:  domain.Kind(r.URL.Query().Get("kind")),
		Query: r.URL.Query().Get("q"),
	}
	if enabled := r.URL.Query().Get("enabled"); enabled != "" {
		b := enabled == "true"
		filter.Enabled = &b
	}

	repos, err := h.Registry.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(repos))
	for _, repo := range repos {
		out = append(out, repositoryToJSON(repo))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRepository handles GET /repositories/{id}.
func (h *Handlers) GetRepository(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	repo, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repositoryToJSON(repo))
}

// UpdateRepository handles PUT /repositories/{id}.
func (h *Handlers) UpdateRepository(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body repositoryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, withField(apperr.ErrValidation, "body", err.Error()))
		return
	}

	patch := domain.RepositoryPatch{}
	if body.Name != "" {
		patch.Name = &body.Name
	}
	if body.Location != "" {
		patch.Location = &body.Location
	}
	if body.Schedule != "" {
		patch.Schedule = &body.Schedule
	}
	if body.MaxCrawlDurationSecs > 0 {
		d := time.Duration(body.MaxCrawlDurationSecs) * time.Second
		patch.MaxCrawlDuration = &d
	}
	if body.DirectoriesToExclude != nil {
		patch.DirectoriesToExclude = &body.DirectoriesToExclude
	}
	if body.FilesToExclude != nil {
		patch.FilesToExclude = &body.FilesToExclude
	}
	if body.ExtensionsToExclude != nil {
		patch.ExtensionsToExclude = &body.ExtensionsToExclude
	}
	if body.MimesToExclude != nil {
		patch.MimesToExclude = &body.MimesToExclude
	}
	if body.MaxFileSize > 0 {
		patch.MaxFileSize = &body.MaxFileSize
	}
	if body.Enabled != nil {
		patch.Enabled = body.Enabled
	}
	if body.Secret != "" {
		creds := &domain.Credentials{Username: body.Username, Secret: body.Secret}
		patch.Credentials = &creds
	}

	updated, err := h.Registry.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repositoryToJSON(updated))
}

// DeleteRepository handles DELETE /repositories/{id}.
func (h *Handlers) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Registry.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartCrawl handles POST /repositories/{id}/crawl.
func (h *Handlers) StartCrawl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snapshot, err := h.Crawls.Start(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snapshot)
}

// StopCrawl handles DELETE /repositories/{id}/crawl.
func (h *Handlers) StopCrawl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Crawls.Stop(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetProgress handles GET /repositories/{id}/progress.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snapshot, ok := h.Progress.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// ActiveProgress handles GET /repositories/progress/active.
func (h *Handlers) ActiveProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Crawls.Active())
}

// Search handles GET /search.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := search.Request{
		QueryText: q.Get("q"),
		Filters: search.Filters{
			Project:    splitCSV(strings.Join(q["project"], ",")),
			Version:    splitCSV(strings.Join(q["version"], ",")),
			Extension:  splitCSV(strings.Join(q["extension"], ",")),
			Repository: splitCSV(strings.Join(q["repository"], ",")),
		},
		Page:     atoiOr(q.Get("page"), 1),
		PageSize: atoiOr(q.Get("page_size"), 20),
	}

	result, err := h.Search.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	facets, err := h.Facets.For(r.Context(), req.QueryText, req.Filters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits":      result.Hits,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
		"clamped":   result.Clamped,
		"facets":    facets,
	})
}

// SearchFilters handles GET /search/filters.
func (h *Handlers) SearchFilters(w http.ResponseWriter, r *http.Request) {
	set, err := h.Facets.All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// GetFile handles GET /files/{id}.
func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.Files.GetFile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(doc.Content))
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, withField(apperr.ErrValidation, "id", "must be a UUID")
	}
	return id, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// fieldError pairs a sentinel apperr kind with the offending request field
// so writeError can populate the envelope's optional "field".
type fieldError struct {
	kind    error
	field   string
	message string
}

func (e fieldError) Error() string { return e.message }
func (e fieldError) Unwrap() error { return e.kind }

func withField(kind error, field, detail string) error {
	return fieldError{kind: kind, field: field, message: detail}
}
