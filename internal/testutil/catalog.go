package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"cs-go/internal/cs"
)

// FakeCatalog is an in-memory cs.Catalog. Tests fill its fields directly
// and inspect Calls afterwards. Safe for concurrent use.
type FakeCatalog struct {
	mu sync.Mutex

	Favorites []cs.RemoteCourse
	Courses   []cs.RemoteCourse
	Modules   map[int64][]cs.RemoteModule
	Folders   map[int64][]cs.RemoteFolder
	Files     map[int64][]cs.RemoteFile
	// Resolved answers ResolveFile by file id.
	Resolved map[int64]cs.RemoteFile
	// Bodies answers Stream by URL.
	Bodies map[string]string

	// Errs injects an error for a call, keyed like Calls entries, for
	// example "ListFiles 12" or "Stream https://x/f?verifier=v".
	Errs map[string]error

	Calls []string
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Modules:  map[int64][]cs.RemoteModule{},
		Folders:  map[int64][]cs.RemoteFolder{},
		Files:    map[int64][]cs.RemoteFile{},
		Resolved: map[int64]cs.RemoteFile{},
		Bodies:   map[string]string{},
		Errs:     map[string]error{},
	}
}

// CallCount returns how many calls started with prefix.
func (c *FakeCatalog) CallCount(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.Calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// ResetCalls clears the recorded calls.
func (c *FakeCatalog) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
}

func (c *FakeCatalog) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, call)
	return c.Errs[call]
}

func (c *FakeCatalog) ListFavorites(context.Context) ([]cs.RemoteCourse, error) {
	if err := c.record("ListFavorites"); err != nil {
		return nil, err
	}
	return c.Favorites, nil
}

func (c *FakeCatalog) ListAllCourses(context.Context) ([]cs.RemoteCourse, error) {
	if err := c.record("ListAllCourses"); err != nil {
		return nil, err
	}
	return c.Courses, nil
}

func (c *FakeCatalog) ListModulesWithItems(_ context.Context, courseID int64) ([]cs.RemoteModule, error) {
	if err := c.record(fmt.Sprintf("ListModulesWithItems %d", courseID)); err != nil {
		return nil, err
	}
	return c.Modules[courseID], nil
}

func (c *FakeCatalog) ListFolders(_ context.Context, courseID int64) ([]cs.RemoteFolder, error) {
	if err := c.record(fmt.Sprintf("ListFolders %d", courseID)); err != nil {
		return nil, err
	}
	return c.Folders[courseID], nil
}

func (c *FakeCatalog) ListFiles(_ context.Context, folderID int64) ([]cs.RemoteFile, error) {
	if err := c.record(fmt.Sprintf("ListFiles %d", folderID)); err != nil {
		return nil, err
	}
	return c.Files[folderID], nil
}

func (c *FakeCatalog) ResolveFile(_ context.Context, fileID int64) (cs.RemoteFile, error) {
	if err := c.record(fmt.Sprintf("ResolveFile %d", fileID)); err != nil {
		return cs.RemoteFile{}, err
	}
	f, ok := c.Resolved[fileID]
	if !ok {
		return cs.RemoteFile{}, &cs.TransportError{Method: http.MethodGet, URL: fmt.Sprintf("/api/v1/files/%d", fileID), Status: http.StatusNotFound}
	}
	return f, nil
}

func (c *FakeCatalog) Stream(_ context.Context, url string) (io.ReadCloser, int64, error) {
	if err := c.record("Stream " + url); err != nil {
		return nil, 0, err
	}
	body, ok := c.Bodies[url]
	if !ok {
		return nil, 0, &cs.TransportError{Method: http.MethodGet, URL: url, Status: http.StatusNotFound}
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

var _ cs.Catalog = (*FakeCatalog)(nil)

// TransportErr returns a transport error with the given status.
func TransportErr(status int) error {
	return &cs.TransportError{Method: http.MethodGet, URL: "https://canvas.test", Status: status}
}
