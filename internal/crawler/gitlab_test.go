package crawler

import (
	"context"
	"testing"
)

// drain exhausts NextBatch's channels without requiring a real clone: the
// embedded GitCrawlers below never have repo set, so GitCrawler.NextBatch
// returns immediately with no items and no error.
func drain(items <-chan FileItem, errs <-chan error) error {
	for range items {
	}
	return <-errs
}

func TestProjectProgress_ReportsCurrentProjectFileTotalNotGroupProjectCount(t *testing.T) {
	c := &GitlabGroupCrawler{
		RepositoryName: "group",
		crawlers: []*GitCrawler{
			NewGitCrawler("team/one", "", "", "", nil, 0),
			NewGitCrawler("team/two", "", "", "", nil, 0),
		},
		crawlerFileTotals: []int{3, 40},
	}

	items, errs := c.NextBatch(context.Background())
	if err := drain(items, errs); err != nil {
		t.Fatalf("NextBatch: %v", err)
	}

	processed, total, currentProject, currentProcessed, currentFilesTotal := c.ProjectProgress()
	if total != 2 {
		t.Errorf("expected total projects 2, got %d", total)
	}
	if processed != 2 {
		t.Errorf("expected 2 projects done, got %d", processed)
	}
	if currentProject != "team/two" {
		t.Errorf("expected current project team/two, got %q", currentProject)
	}
	if currentProcessed != 0 {
		t.Errorf("expected 0 files processed for an empty project, got %d", currentProcessed)
	}
	// This is the regression the bug fix targets: currentFilesTotal must be
	// the last walked project's own file count (40), not the group's
	// project count (2).
	if currentFilesTotal != 40 {
		t.Errorf("expected current project file total 40, got %d", currentFilesTotal)
	}
}

func TestProjectProgress_TracksEachProjectsOwnTotalAsItWalks(t *testing.T) {
	c := &GitlabGroupCrawler{
		crawlers: []*GitCrawler{
			NewGitCrawler("a", "", "", "", nil, 0),
		},
		crawlerFileTotals: []int{7},
	}

	_, _, currentProject, _, currentFilesTotal := c.ProjectProgress()
	if currentProject != "" || currentFilesTotal != 0 {
		t.Fatalf("expected zero-value progress before NextBatch runs, got project=%q total=%d", currentProject, currentFilesTotal)
	}

	items, errs := c.NextBatch(context.Background())
	if err := drain(items, errs); err != nil {
		t.Fatalf("NextBatch: %v", err)
	}

	_, _, currentProject, _, currentFilesTotal = c.ProjectProgress()
	if currentProject != "a" {
		t.Errorf("expected current project a, got %q", currentProject)
	}
	if currentFilesTotal != 7 {
		t.Errorf("expected current project file total 7, got %d", currentFilesTotal)
	}
}

func TestRevision_ConcatenatesEveryProjectsCommitHash(t *testing.T) {
	c := &GitlabGroupCrawler{
		crawlers: []*GitCrawler{
			NewGitCrawler("a", "", "", "", nil, 0),
			NewGitCrawler("b", "", "", "", nil, 0),
		},
	}
	got := c.Revision()
	want := "a@;b@;"
	if got != want {
		t.Errorf("expected revision %q, got %q", want, got)
	}
}
