package ingestion

import "testing"

func TestClassify_DirectoryExcluded(t *testing.T) {
	cfg := FilterConfig{DirectoriesToExclude: []string{"node_modules", ".git"}}

	if got := classify(cfg, "src/node_modules/pkg/index.js", 10, []byte("x")); got != rejectDirectory {
		t.Errorf("expected rejectDirectory, got %q", got)
	}
	if got := classify(cfg, "src/main.go", 10, []byte("x")); got != rejectNone {
		t.Errorf("expected rejectNone, got %q", got)
	}
}

func TestClassify_DirectoryExcludeIgnoresOwnBasename(t *testing.T) {
	cfg := FilterConfig{DirectoriesToExclude: []string{"main.go"}}

	if got := classify(cfg, "src/main.go", 10, []byte("x")); got != rejectNone {
		t.Errorf("a file excluded only as a directory segment must not match its own name, got %q", got)
	}
}

func TestClassify_FileGlobExcluded(t *testing.T) {
	cfg := FilterConfig{FilesToExclude: []string{"*.lock", "Cargo.lock"}}

	if got := classify(cfg, "Cargo.lock", 10, []byte("x")); got != rejectFileGlob {
		t.Errorf("expected rejectFileGlob, got %q", got)
	}
	if got := classify(cfg, "yarn.lock", 10, []byte("x")); got != rejectFileGlob {
		t.Errorf("expected glob match on *.lock, got %q", got)
	}
}

func TestClassify_ExtensionExcluded(t *testing.T) {
	cfg := FilterConfig{ExtensionsToExclude: []string{"PNG", "jpg"}}

	if got := classify(cfg, "assets/logo.png", 10, []byte("x")); got != rejectExtension {
		t.Errorf("expected case-insensitive extension match, got %q", got)
	}
}

func TestClassify_MaxFileSize(t *testing.T) {
	cfg := FilterConfig{MaxFileSize: 100}

	if got := classify(cfg, "big.bin", 101, []byte("x")); got != rejectSize {
		t.Errorf("expected rejectSize, got %q", got)
	}
	if got := classify(cfg, "ok.bin", 100, []byte("x")); got != rejectNone {
		t.Errorf("expected rejectNone at the boundary, got %q", got)
	}
}

func TestClassify_MaxFileSizeDefault(t *testing.T) {
	cfg := FilterConfig{}
	if got := classify(cfg, "huge.bin", 11<<20, []byte("x")); got != rejectSize {
		t.Errorf("expected the 10 MiB default to apply, got %q", got)
	}
}

func TestClassify_BinaryContentRejected(t *testing.T) {
	cfg := FilterConfig{}
	head := []byte("hello\x00world")

	if got := classify(cfg, "file.bin", int64(len(head)), head); got != rejectBinary {
		t.Errorf("expected rejectBinary on embedded NUL, got %q", got)
	}
}

func TestClassify_MimeExcluded(t *testing.T) {
	cfg := FilterConfig{MimesToExclude: []string{"image/png"}}
	head := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A} // PNG magic

	if got := classify(cfg, "no-extension", int64(len(head)), head); got != rejectMime {
		t.Errorf("expected rejectMime from content sniffing, got %q", got)
	}
}

func TestClassify_OrderDirectoryBeforeExtension(t *testing.T) {
	cfg := FilterConfig{
		DirectoriesToExclude: []string{"vendor"},
		ExtensionsToExclude:  []string{"go"},
	}
	if got := classify(cfg, "vendor/pkg/file.go", 10, []byte("x")); got != rejectDirectory {
		t.Errorf("directory exclusion must take priority over extension exclusion, got %q", got)
	}
}

func TestExtensionOf(t *testing.T) {
	cases := map[string]string{
		"main.go":    "go",
		"README":     "",
		"archive.tar.gz": "gz",
		"Dockerfile": "",
	}
	for name, want := range cases {
		if got := extensionOf(name); got != want {
			t.Errorf("extensionOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestMatchesFileGlob(t *testing.T) {
	if !matchesFileGlob("test.min.js", []string{"*.min.js"}) {
		t.Error("expected glob *.min.js to match test.min.js")
	}
	if matchesFileGlob("test.js", []string{"*.min.js"}) {
		t.Error("did not expect test.js to match *.min.js")
	}
}
