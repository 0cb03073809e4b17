// Package facet computes static and scoped facet counts over the shared
// index alias and merges them for the UI's selection-aware filter lists
// (spec.md §4.7, component C7).
package facet

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/singleflight"

	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/search"
)

// categories maps a facet category name (as surfaced in the §6 response
// envelope) to the raw bleve sub-field it facets over.
var categories = []struct {
	name  string
	field string
}{
	{"projects", "project_exact"},
	{"versions", "version_exact"},
	{"extensions", "extension_exact"},
	{"repositories", "repository_id_exact"},
}

// maxFacetTermsDefault is spec.md §4.7's MAX_FACET_TERMS default.
const maxFacetTermsDefault = 200

// Set holds the four facet categories, each already capped and sorted by
// count desc then value asc.
type Set struct {
	Projects     []domain.FacetValue
	Versions     []domain.FacetValue
	Extensions   []domain.FacetValue
	Repositories []domain.FacetValue
}

func (s *Set) byCategory(name string) []domain.FacetValue {
	switch name {
	case "projects":
		return s.Projects
	case "versions":
		return s.Versions
	case "extensions":
		return s.Extensions
	case "repositories":
		return s.Repositories
	default:
		return nil
	}
}

func (s *Set) setCategory(name string, values []domain.FacetValue) {
	switch name {
	case "projects":
		s.Projects = values
	case "versions":
		s.Versions = values
	case "extensions":
		s.Extensions = values
	case "repositories":
		s.Repositories = values
	}
}

// Engine computes and caches facets over idx (normally the shared alias
// from internal/index).
type Engine struct {
	index     bleve.Index
	maxTerms  int
	staticTTL time.Duration

	group singleflight.Group

	mu           sync.RWMutex
	cachedStatic *Set
	cachedAt     time.Time
}

// NewEngine constructs an Engine. maxTerms and staticTTL take spec.md
// §4.7 defaults (200, 60s) when zero.
func NewEngine(idx bleve.Index, maxTerms int, staticTTL time.Duration) *Engine {
	if maxTerms <= 0 {
		maxTerms = maxFacetTermsDefault
	}
	if staticTTL <= 0 {
		staticTTL = 60 * time.Second
	}
	return &Engine{index: idx, maxTerms: maxTerms, staticTTL: staticTTL}
}

// Invalidate drops the static facet cache; called by the crawl
// orchestrator (orchestrator.Runner) right after a generation commits
// (any index mutation, per spec.md §4.7).
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cachedAt = time.Time{}
	e.cachedStatic = nil
}

// All computes facets_all(): counts across every indexed document,
// irrespective of query or filters, cached for staticTTL and
// single-flighted across concurrent callers.
func (e *Engine) All(ctx context.Context) (*Set, error) {
	e.mu.RLock()
	if e.cachedStatic != nil && time.Since(e.cachedAt) < e.staticTTL {
		defer e.mu.RUnlock()
		return e.cachedStatic, nil
	}
	e.mu.RUnlock()

	v, err, _ := e.group.Do("static", func() (interface{}, error) {
		e.mu.RLock()
		if e.cachedStatic != nil && time.Since(e.cachedAt) < e.staticTTL {
			set := e.cachedStatic
			e.mu.RUnlock()
			return set, nil
		}
		e.mu.RUnlock()

		set, err := e.compute(ctx, bleve.NewMatchAllQuery())
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.cachedStatic = set
		e.cachedAt = time.Now()
		e.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

// For computes facets_for(query, filters): counts restricted to documents
// matching the current search request. Never cached: it is keyed on an
// effectively unbounded space of (query, filters) pairs.
func (e *Engine) For(ctx context.Context, queryText string, filters search.Filters) (*Set, error) {
	q := compileScopedQuery(queryText, filters)
	return e.compute(ctx, q)
}

func (e *Engine) compute(ctx context.Context, q query.Query) (*Set, error) {
	sr := bleve.NewSearchRequestOptions(q, 0, 0, false)
	for _, c := range categories {
		sr.AddFacet(c.name, bleve.NewFacetRequest(c.field, e.maxTerms))
	}

	res, err := e.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, err
	}

	set := &Set{}
	for _, c := range categories {
		fr, ok := res.Facets[c.name]
		if !ok || fr.Terms == nil {
			continue
		}
		var values []domain.FacetValue
		for _, t := range fr.Terms.Terms() {
			value := t.Term
			if c.field == "extension_exact" && value == "" {
				value = domain.EmptyExtensionLabel
			}
			values = append(values, domain.FacetValue{Value: value, Count: t.Count})
		}
		set.setCategory(c.name, values)
	}
	return set, nil
}

// compileScopedQuery mirrors search.compileQuery's filter translation so
// facets_for sees the same document set the corresponding search would.
func compileScopedQuery(text string, filters search.Filters) query.Query {
	var base query.Query
	text = strings.TrimSpace(text)
	if text == "" {
		base = bleve.NewMatchAllQuery()
	} else {
		name := bleve.NewMatchQuery(text)
		name.SetField("name")
		name.SetBoost(3)
		base = bleve.NewConjunctionQuery(bleve.NewQueryStringQuery(text), name)
	}

	conj := bleve.NewConjunctionQuery(base)
	addFilterCategory(conj, "project_exact", filters.Project)
	addFilterCategory(conj, "version_exact", filters.Version)
	addFilterCategory(conj, "extension_exact", filters.Extension)
	addFilterCategory(conj, "repository_id_exact", filters.Repository)
	return conj
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
