package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/facet"
	"github.com/klask-io/klask-io-sub002/internal/search"
)

type fakeRegistry struct {
	repos map[uuid.UUID]*domain.Repository
}

func (f *fakeRegistry) List(ctx context.Context, filter domain.RepositoryFilter) ([]*domain.Repository, error) {
	var out []*domain.Repository
	for _, r := range f.repos {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRegistry) Get(ctx context.Context, id uuid.UUID) (*domain.Repository, error) {
	r, ok := f.repos[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return r, nil
}

func (f *fakeRegistry) Create(ctx context.Context, def *domain.Repository) (*domain.Repository, error) {
	def.ID = uuid.New()
	f.repos[def.ID] = def
	return def, nil
}

func (f *fakeRegistry) Update(ctx context.Context, id uuid.UUID, patch domain.RepositoryPatch) (*domain.Repository, error) {
	r, ok := f.repos[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	return r, nil
}

func (f *fakeRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.repos[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.repos, id)
	return nil
}

type fakeSupervisor struct {
	startErr error
	active   []domain.CrawlProgress
}

func (f *fakeSupervisor) Start(ctx context.Context, id uuid.UUID) (domain.CrawlProgress, error) {
	if f.startErr != nil {
		return domain.CrawlProgress{}, f.startErr
	}
	return domain.CrawlProgress{RepositoryID: id, Phase: domain.PhaseStarting}, nil
}

func (f *fakeSupervisor) Stop(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeSupervisor) Active() []domain.CrawlProgress               { return f.active }

type fakeProgress struct {
	snapshots map[uuid.UUID]domain.CrawlProgress
}

func (f *fakeProgress) Get(id uuid.UUID) (domain.CrawlProgress, bool) {
	snap, ok := f.snapshots[id]
	return snap, ok
}

type fakeSearch struct {
	result *search.Result
	err    error
}

func (f *fakeSearch) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	return f.result, f.err
}

type fakeFacets struct {
	set *facet.Set
	err error
}

func (f *fakeFacets) All(ctx context.Context) (*facet.Set, error)                                { return f.set, f.err }
func (f *fakeFacets) For(ctx context.Context, q string, filters search.Filters) (*facet.Set, error) {
	return f.set, f.err
}

type fakeFiles struct {
	files map[string]*domain.IndexedFile
}

func (f *fakeFiles) GetFile(ctx context.Context, id string) (*domain.IndexedFile, error) {
	doc, ok := f.files[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return doc, nil
}

func newTestHandlers() (*Handlers, *fakeRegistry) {
	reg := &fakeRegistry{repos: map[uuid.UUID]*domain.Repository{}}
	return &Handlers{
		Registry: reg,
		Crawls:   &fakeSupervisor{},
		Progress: &fakeProgress{snapshots: map[uuid.UUID]domain.CrawlProgress{}},
		Search:   &fakeSearch{result: &search.Result{}},
		Facets:   &fakeFacets{set: &facet.Set{}},
		Files:    &fakeFiles{files: map[string]*domain.IndexedFile{}},
	}, reg
}

func withIDParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateRepository_ValidationError(t *testing.T) {
	h, _ := newTestHandlers()
	body := strings.NewReader(`{"name":"","kind":"FILESYSTEM","location":"/tmp"}`)
	req := httptest.NewRequest(http.MethodPost, "/repositories", body)
	w := httptest.NewRecorder()

	h.Registry = &validatingRegistry{fakeRegistry: &fakeRegistry{repos: map[uuid.UUID]*domain.Repository{}}}
	h.CreateRepository(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Code != "BadInput.Validation" {
		t.Errorf("unexpected code %q", env.Code)
	}
}

// validatingRegistry rejects an empty name the way registry.Service does,
// without pulling in the registry package (would import httpapi's own
// dependents and risk a cycle in the test build).
type validatingRegistry struct {
	*fakeRegistry
}

func (v *validatingRegistry) Create(ctx context.Context, def *domain.Repository) (*domain.Repository, error) {
	if def.Name == "" {
		return nil, withField(apperr.ErrValidation, "name", "name is required")
	}
	return v.fakeRegistry.Create(ctx, def)
}

func TestCreateRepository_Success(t *testing.T) {
	h, reg := newTestHandlers()
	body := strings.NewReader(`{"name":"demo","kind":"FILESYSTEM","location":"/tmp"}`)
	req := httptest.NewRequest(http.MethodPost, "/repositories", body)
	w := httptest.NewRecorder()

	h.CreateRepository(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(reg.repos) != 1 {
		t.Fatalf("expected 1 stored repository, got %d", len(reg.repos))
	}
}

func TestGetRepository_NotFound(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/repositories/"+uuid.New().String(), nil)
	req = withIDParam(req, uuid.New().String())
	w := httptest.NewRecorder()

	h.GetRepository(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetRepository_BadUUID(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/repositories/not-a-uuid", nil)
	req = withIDParam(req, "not-a-uuid")
	w := httptest.NewRecorder()

	h.GetRepository(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Field != "id" {
		t.Errorf("expected field %q, got %q", "id", env.Field)
	}
}

func TestDeleteRepository_NoContent(t *testing.T) {
	h, reg := newTestHandlers()
	id := uuid.New()
	reg.repos[id] = &domain.Repository{ID: id, Name: "demo"}

	req := httptest.NewRequest(http.MethodDelete, "/repositories/"+id.String(), nil)
	req = withIDParam(req, id.String())
	w := httptest.NewRecorder()

	h.DeleteRepository(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, ok := reg.repos[id]; ok {
		t.Error("expected repository to be removed")
	}
}

func TestStartCrawl_Accepted(t *testing.T) {
	h, _ := newTestHandlers()
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/repositories/"+id.String()+"/crawl", nil)
	req = withIDParam(req, id.String())
	w := httptest.NewRecorder()

	h.StartCrawl(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestGetProgress_NoContentWhenUnknown(t *testing.T) {
	h, _ := newTestHandlers()
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/repositories/"+id.String()+"/progress", nil)
	req = withIDParam(req, id.String())
	w := httptest.NewRecorder()

	h.GetProgress(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestGetProgress_ReturnsSnapshot(t *testing.T) {
	h, _ := newTestHandlers()
	id := uuid.New()
	h.Progress.(*fakeProgress).snapshots[id] = domain.CrawlProgress{RepositoryID: id, Phase: domain.PhaseProcessing}

	req := httptest.NewRequest(http.MethodGet, "/repositories/"+id.String()+"/progress", nil)
	req = withIDParam(req, id.String())
	w := httptest.NewRecorder()

	h.GetProgress(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSearch_BuildsFiltersFromQueryParams(t *testing.T) {
	h, _ := newTestHandlers()
	h.Search = &capturingSearch{result: &search.Result{Total: 3}}

	req := httptest.NewRequest(http.MethodGet, "/search?q=hello&extension=go,rs&page=2&page_size=10", nil)
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cs := h.Search.(*capturingSearch)
	if cs.gotReq.QueryText != "hello" {
		t.Errorf("expected query text %q, got %q", "hello", cs.gotReq.QueryText)
	}
	if len(cs.gotReq.Filters.Extension) != 2 {
		t.Errorf("expected 2 extensions, got %v", cs.gotReq.Filters.Extension)
	}
	if cs.gotReq.Page != 2 || cs.gotReq.PageSize != 10 {
		t.Errorf("expected page=2 page_size=10, got page=%d page_size=%d", cs.gotReq.Page, cs.gotReq.PageSize)
	}
}

type capturingSearch struct {
	result  *search.Result
	gotReq  search.Request
}

func (c *capturingSearch) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	c.gotReq = req
	return c.result, nil
}

func TestGetFile_WritesRawContent(t *testing.T) {
	h, _ := newTestHandlers()
	h.Files.(*fakeFiles).files["abc"] = &domain.IndexedFile{ID: "abc", Content: "package main"}

	req := httptest.NewRequest(http.MethodGet, "/files/abc", nil)
	req = withIDParam(req, "abc")
	w := httptest.NewRecorder()

	h.GetFile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "package main" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestGetFile_NotFound(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/files/missing", nil)
	req = withIDParam(req, "missing")
	w := httptest.NewRecorder()

	h.GetFile(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
