package cs

import (
	"context"
	"io"
	"net/url"
)

// Module item content types.
const (
	ContentFile        = "File"
	ContentExternalURL = "ExternalUrl"
)

// RemoteCourse is a course as reported by the catalog. Term is empty when
// the feed does not carry it.
type RemoteCourse struct {
	ID        int64
	Name      string
	Code      string
	Term      string
	UpdatedAt string
}

// RemoteModule is a content module with its items.
type RemoteModule struct {
	ID    string
	Name  string
	Items []RemoteModuleItem
}

// RemoteModuleItem is one module entry. Content is nil for items that do
// not reference any content (headers, pages the catalog does not expose).
type RemoteModuleItem struct {
	Content *RemoteContent
}

// RemoteContent is the content behind a module item.
type RemoteContent struct {
	Type      string
	ID        int64
	Title     string
	URL       string
	UpdatedAt string
}

// RemoteFolder is a sub-container of a course.
type RemoteFolder struct {
	ID         int64
	FullName   string
	FilesCount int64
	ParentID   *int64
	UpdatedAt  string
}

// RemoteFile is an entry of a folder, or a file resolved by id.
type RemoteFile struct {
	ID          int64
	DisplayName string
	URL         string
	UpdatedAt   string
}

// Catalog is the read-only view of the remote catalog the engine needs.
// Every list call returns the fully drained logical list. Non-success
// responses are returned as *TransportError.
type Catalog interface {
	ListFavorites(ctx context.Context) ([]RemoteCourse, error)
	ListAllCourses(ctx context.Context) ([]RemoteCourse, error)
	ListModulesWithItems(ctx context.Context, courseID int64) ([]RemoteModule, error)
	ListFolders(ctx context.Context, courseID int64) ([]RemoteFolder, error)
	ListFiles(ctx context.Context, folderID int64) ([]RemoteFile, error)
	ResolveFile(ctx context.Context, fileID int64) (RemoteFile, error)

	// Stream opens a download. size is -1 when the length is unknown.
	Stream(ctx context.Context, url string) (body io.ReadCloser, size int64, err error)
}

// VerifierParam is the query parameter that makes a download URL usable.
const VerifierParam = "verifier"

// UsableDownloadURL returns raw if it carries the verifier parameter and the
// empty string otherwise. An empty URL is the "not yet ready" state.
func UsableDownloadURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if _, ok := u.Query()[VerifierParam]; !ok {
		return ""
	}
	return raw
}
