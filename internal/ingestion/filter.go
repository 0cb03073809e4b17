package ingestion

import (
	"bytes"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FilterConfig carries the per-repository exclusion rules (spec.md §4.4).
type FilterConfig struct {
	DirectoriesToExclude []string
	FilesToExclude       []string
	ExtensionsToExclude  []string
	MimesToExclude       []string
	MaxFileSize          int64
}

// rejection names the ordered filter step that rejected a file, used only
// for diagnostics; callers treat any non-empty reason as "skip this file".
type rejection string

const (
	rejectNone       rejection = ""
	rejectDirectory  rejection = "directory_excluded"
	rejectFileGlob   rejection = "file_excluded"
	rejectExtension  rejection = "extension_excluded"
	rejectSize       rejection = "max_size_exceeded"
	rejectBinary     rejection = "binary_content"
	rejectMime       rejection = "mime_excluded"
)

// sniffWindow is how much of a file's head is inspected for NUL bytes and
// MIME sniffing (spec.md §4.4 step 5).
const sniffWindow = 8 * 1024

// classify runs the six-step filter chain in spec.md §4.4 order, returning
// the first matching rejection, or rejectNone if the file should be kept.
// size and head must reflect the same file; head may be shorter than
// sniffWindow for small files.
func classify(cfg FilterConfig, relPath string, size int64, head []byte) rejection {
	if matchesDirectoryExclude(relPath, cfg.DirectoriesToExclude) {
		return rejectDirectory
	}
	base := path.Base(filepath.ToSlash(relPath))
	if matchesFileGlob(base, cfg.FilesToExclude) {
		return rejectFileGlob
	}
	ext := extensionOf(base)
	if containsFold(cfg.ExtensionsToExclude, ext) {
		return rejectExtension
	}
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	if size > maxSize {
		return rejectSize
	}
	window := head
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	if bytes.IndexByte(window, 0) >= 0 {
		return rejectBinary
	}
	if len(cfg.MimesToExclude) > 0 {
		mime := detectMIME(base, window)
		if containsFold(cfg.MimesToExclude, mime) {
			return rejectMime
		}
	}
	return rejectNone
}

// detectMIME classifies content by extension table first, falling back to
// content sniffing, exactly as spec.md §4.4 step 6 describes.
func detectMIME(basename string, head []byte) string {
	if ext := filepath.Ext(basename); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if semi := strings.IndexByte(byExt, ';'); semi >= 0 {
				byExt = byExt[:semi]
			}
			return strings.TrimSpace(byExt)
		}
	}
	return mimetype.Detect(head).String()
}

func extensionOf(basename string) string {
	ext := filepath.Ext(basename)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// matchesDirectoryExclude rejects when any path segment (not the basename)
// equals or is prefixed by an excluded directory entry.
func matchesDirectoryExclude(relPath string, excludes []string) bool {
	if len(excludes) == 0 {
		return false
	}
	segments := strings.Split(filepath.ToSlash(relPath), "/")
	if len(segments) > 0 {
		segments = segments[:len(segments)-1] // drop the file's own basename
	}
	for _, seg := range segments {
		for _, ex := range excludes {
			if strings.HasPrefix(seg, ex) {
				return true
			}
		}
	}
	return false
}

func matchesFileGlob(basename string, globs []string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, basename); err == nil && ok {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
