// Package search compiles query requests into bleve searches against the
// shared index alias and extracts highlighted snippets (spec.md §4.6,
// component C6).
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bleveSearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
)

// HighlightOpen/HighlightClose are the sentinel markers spec.md §4.6
// requires instead of HTML.
const (
	HighlightOpen  = "⟪HL⟫"
	HighlightClose = "⟪/HL⟫"
)

// Filters is the set of repeatable filter categories from the /search
// query string.
type Filters struct {
	Project    []string
	Version    []string
	Extension  []string
	Repository []string
}

func (f Filters) empty() bool {
	return len(f.Project) == 0 && len(f.Version) == 0 && len(f.Extension) == 0 && len(f.Repository) == 0
}

// Request is the compiled input to Search.
type Request struct {
	QueryText           string
	Filters             Filters
	Page                int
	PageSize            int
	MaxSnippetFragments int
}

// Hit is a single search result.
type Hit struct {
	ID           string
	RepositoryID string
	Project      string
	Version      string
	Path         string
	Name         string
	Extension    string
	Size         int64
	Score        float64
	Snippets     []string
}

// Result is the response envelope's search portion.
type Result struct {
	Hits     []Hit
	Total    uint64
	Page     int
	PageSize int
	Clamped  bool
}

// Engine runs searches against a bleve index (normally the shared alias
// from internal/index).
type Engine struct {
	index           bleve.Index
	maxResultWindow int
	timeout         time.Duration
}

// NewEngine constructs an Engine. maxResultWindow and timeout take spec.md
// §4.6 defaults (10000, 10s) when zero.
func NewEngine(idx bleve.Index, maxResultWindow int, timeout time.Duration) *Engine {
	if maxResultWindow <= 0 {
		maxResultWindow = 10000
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{index: idx, maxResultWindow: maxResultWindow, timeout: timeout}
}

// Search compiles req and executes it, clamping pagination that would
// exceed MAX_RESULT_WINDOW rather than erroring (spec.md §4.6).
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	fragments := req.MaxSnippetFragments
	if fragments <= 0 {
		fragments = 3
	}

	clamped := false
	if page*pageSize > e.maxResultWindow {
		page = 1
		clamped = true
	}

	q, err := compileQuery(req.QueryText, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrBadQuery, err)
	}

	sr := bleve.NewSearchRequestOptions(q, pageSize, (page-1)*pageSize, false)
	sr.Fields = []string{"repository_id", "project", "version", "path", "name", "extension", "size"}
	sr.Highlight = bleve.NewHighlight()
	sr.Highlight.AddField("content")
	sr.Highlight.AddField("name")
	sr.SortBy([]string{"-_score", "path", "repository_id_exact"})

	res, err := e.index.SearchInContext(ctx, sr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, toHit(h, fragments))
	}

	return &Result{
		Hits:     hits,
		Total:    res.Total,
		Page:     page,
		PageSize: pageSize,
		Clamped:  clamped,
	}, nil
}

func toHit(h *bleveSearch.DocumentMatch, maxFragments int) Hit {
	hit := Hit{
		ID:           h.ID,
		RepositoryID: fieldString(h.Fields, "repository_id"),
		Project:      fieldString(h.Fields, "project"),
		Version:      fieldString(h.Fields, "version"),
		Path:         fieldString(h.Fields, "path"),
		Name:         fieldString(h.Fields, "name"),
		Extension:    fieldString(h.Fields, "extension"),
		Size:         fieldInt64(h.Fields, "size"),
		Score:        h.Score,
	}
	hit.Snippets = extractSnippets(h, maxFragments)
	return hit
}

func fieldString(fields map[string]interface{}, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fieldInt64(fields map[string]interface{}, name string) int64 {
	v, ok := fields[name]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

// extractSnippets converts bleve's fragment map into at most maxFragments
// plain-text snippets with the sentinel highlight markers substituted in
// place of bleve's default <mark> tags.
func extractSnippets(h *bleveSearch.DocumentMatch, maxFragments int) []string {
	var out []string
	for _, field := range []string{"content", "name"} {
		frags, ok := h.Fragments[field]
		if !ok {
			continue
		}
		for _, frag := range frags {
			if len(out) >= maxFragments {
				return out
			}
			out = append(out, sentinelize(frag))
		}
	}
	return out
}

func sentinelize(fragment string) string {
	fragment = strings.ReplaceAll(fragment, "<mark>", HighlightOpen)
	fragment = strings.ReplaceAll(fragment, "</mark>", HighlightClose)
	return fragment
}

// compileQuery implements spec.md §4.6's compilation rules in order.
func compileQuery(text string, filters Filters) (query.Query, error) {
	var base query.Query
	text = strings.TrimSpace(text)
	if text == "" {
		base = bleve.NewMatchAllQuery()
	} else {
		qs := bleve.NewQueryStringQuery(text)
		if _, err := qs.Parse(); err != nil {
			return nil, err
		}
		name := bleve.NewMatchQuery(text)
		name.SetField("name")
		name.SetBoost(3)
		base = bleve.NewConjunctionQuery(qs, name)
	}

	if filters.empty() {
		return base, nil
	}

	conj := bleve.NewConjunctionQuery(base)
	addFilterCategory(conj, "project_exact", filters.Project)
	addFilterCategory(conj, "version_exact", filters.Version)
	addFilterCategory(conj, "extension_exact", filters.Extension)
	addFilterCategory(conj, "repository_id_exact", filters.Repository)
	return conj, nil
}

func addFilterCategory(conj *query.ConjunctionQuery, field string, values []string) {
	if len(values) == 0 {
		return
	}
	disj := bleve.NewDisjunctionQuery()
	for _, v := range values {
		tq := bleve.NewTermQuery(v)
		tq.SetField(field)
		disj.AddQuery(tq)
	}
	conj.AddQuery(disj)
}
