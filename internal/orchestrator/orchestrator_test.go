package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/domain"
	"github.com/klask-io/klask-io-sub002/internal/index"
)

type fakeRevisionRecorder struct {
	repositoryID uuid.UUID
	revision     string
	called       bool
}

func (f *fakeRevisionRecorder) RecordRevision(ctx context.Context, repositoryID uuid.UUID, revision string) error {
	f.called = true
	f.repositoryID = repositoryID
	f.revision = revision
	return nil
}

type fakeFacetInvalidator struct {
	invalidated bool
}

func (f *fakeFacetInvalidator) Invalidate() { f.invalidated = true }

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestRun_FilesystemRepository_CommitsAndRecordsRevision(t *testing.T) {
	source := t.TempDir()
	writeFixture(t, source, "main.go", "package main")
	writeFixture(t, source, "README.md", "hello")

	manager, err := index.NewManager(t.TempDir(), "klask-test")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	registry := &fakeRevisionRecorder{}
	facets := &fakeFacetInvalidator{}
	runner := &Runner{
		Manager:    manager,
		Registry:   registry,
		Facets:     facets,
		WorkingDir: t.TempDir(),
	}

	repo := &domain.Repository{
		ID:       uuid.New(),
		Name:     "demo",
		Kind:     domain.KindFilesystem,
		Location: source,
	}

	var phases []domain.Phase
	err = runner.Run(context.Background(), repo, func(p domain.CrawlProgress) {
		phases = append(phases, p.Phase)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !facets.invalidated {
		t.Error("expected facets to be invalidated on a successful commit")
	}
	if !registry.called || registry.repositoryID != repo.ID {
		t.Error("expected the revision to be recorded for the crawled repository")
	}

	wantPhases := []domain.Phase{domain.PhaseCloning, domain.PhaseProcessing, domain.PhaseProcessing, domain.PhaseIndexing}
	if len(phases) != len(wantPhases) {
		t.Fatalf("expected %d published phases, got %d: %v", len(wantPhases), len(phases), phases)
	}
	for i, want := range wantPhases {
		if phases[i] != want {
			t.Errorf("phase %d: expected %q, got %q", i, want, phases[i])
		}
	}
}

func TestRun_UnsupportedKindFailsBeforeTouchingTheIndex(t *testing.T) {
	manager, err := index.NewManager(t.TempDir(), "klask-test")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	registry := &fakeRevisionRecorder{}
	runner := &Runner{Manager: manager, Registry: registry, Facets: &fakeFacetInvalidator{}}

	repo := &domain.Repository{ID: uuid.New(), Name: "demo", Kind: "BOGUS", Location: "/tmp"}
	err = runner.Run(context.Background(), repo, func(domain.CrawlProgress) {})
	if err == nil {
		t.Fatal("expected an error for an unsupported repository kind")
	}
	if registry.called {
		t.Error("expected RecordRevision to never be called on a build-crawler failure")
	}
}

func TestSplitGitlabLocation_SplitsBaseURLAndGroupPath(t *testing.T) {
	base, group, err := splitGitlabLocation("https://gitlab.example.com/teams/platform")
	if err != nil {
		t.Fatalf("splitGitlabLocation: %v", err)
	}
	if base != "https://gitlab.example.com" {
		t.Errorf("expected base URL https://gitlab.example.com, got %q", base)
	}
	if group != "teams/platform" {
		t.Errorf("expected group path teams/platform, got %q", group)
	}
}
