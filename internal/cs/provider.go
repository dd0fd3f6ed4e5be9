package cs

import (
	"context"
	"io"

	"cs-go/internal/model"
)

// Provider maps entities to output paths and writes their artifacts.
// Paths are slash separated and relative to the output root.
type Provider interface {
	// CoursePath is the directory of a course under the output root.
	CoursePath(course *model.Course) string

	// FilePath is a file's path relative to its course directory. folder is
	// nil for files discovered through a module.
	FilePath(file *model.File, folder *model.Folder) string

	// ExternalLinkPath is a link's path relative to its course directory,
	// without a suffix. The recipe that writes it picks one.
	ExternalLinkPath(link *model.ExternalLink) string

	// Excluded reports whether a course-relative path matches an ignore pattern.
	Excluded(relPath string) bool

	// MaterializeFile downloads url to path. Nothing is left at path unless
	// every byte was written.
	MaterializeFile(ctx context.Context, url, path string) error

	// MaterializeExternalLink tries the configured recipes in order. It
	// returns false when every recipe declined.
	MaterializeExternalLink(ctx context.Context, link *model.ExternalLink, path string) (bool, error)
}

// Mirror receives a copy of every artifact written to the output root.
type Mirror interface {
	// Put stores size bytes read from r under key, replacing any previous copy.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}
