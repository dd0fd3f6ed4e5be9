package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tomnomnom/linkheader"

	"cs-go/internal/cs"
)

type restCourse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CourseCode string `json:"course_code"`
}

type restFolder struct {
	ID             int64  `json:"id"`
	FullName       string `json:"full_name"`
	FilesCount     int64  `json:"files_count"`
	ParentFolderID *int64 `json:"parent_folder_id"`
	UpdatedAt      string `json:"updated_at"`
}

type restFile struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	UpdatedAt   string `json:"updated_at"`
}

func (f restFile) remote() cs.RemoteFile {
	name := f.DisplayName
	if name == "" {
		name = f.Filename
	}
	return cs.RemoteFile{ID: f.ID, DisplayName: name, URL: f.URL, UpdatedAt: f.UpdatedAt}
}

// ListFavorites returns the courses pinned to the user's dashboard.
func (c *Client) ListFavorites(ctx context.Context) ([]cs.RemoteCourse, error) {
	courses, err := restList[restCourse](ctx, c, "/users/self/favorites/courses")
	if err != nil {
		return nil, err
	}
	out := make([]cs.RemoteCourse, len(courses))
	for i, rc := range courses {
		out[i] = cs.RemoteCourse{ID: rc.ID, Name: rc.Name, Code: rc.CourseCode}
	}
	return out, nil
}

// ListFolders returns every folder of a course.
func (c *Client) ListFolders(ctx context.Context, courseID int64) ([]cs.RemoteFolder, error) {
	folders, err := restList[restFolder](ctx, c, "/courses/"+strconv.FormatInt(courseID, 10)+"/folders")
	if err != nil {
		return nil, err
	}
	out := make([]cs.RemoteFolder, len(folders))
	for i, f := range folders {
		out[i] = cs.RemoteFolder{
			ID:         f.ID,
			FullName:   f.FullName,
			FilesCount: f.FilesCount,
			ParentID:   f.ParentFolderID,
			UpdatedAt:  f.UpdatedAt,
		}
	}
	return out, nil
}

// ListFiles returns every file directly inside a folder.
func (c *Client) ListFiles(ctx context.Context, folderID int64) ([]cs.RemoteFile, error) {
	files, err := restList[restFile](ctx, c, "/folders/"+strconv.FormatInt(folderID, 10)+"/files")
	if err != nil {
		return nil, err
	}
	out := make([]cs.RemoteFile, len(files))
	for i, f := range files {
		out[i] = f.remote()
	}
	return out, nil
}

// ResolveFile fetches a single file. Its url is sometimes usable when the
// one from a listing was not.
func (c *Client) ResolveFile(ctx context.Context, fileID int64) (cs.RemoteFile, error) {
	var f restFile
	if _, err := c.getJSON(ctx, restPrefix+"/files/"+strconv.FormatInt(fileID, 10), &f); err != nil {
		return cs.RemoteFile{}, err
	}
	return f.remote(), nil
}

// restList fetches path and every page its Link headers point to.
func restList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	next := restPrefix + path + "?per_page=" + perPage
	seen := map[string]bool{}

	var all []T
	for next != "" {
		if seen[next] || len(seen) >= c.maxRequests {
			return nil, fmt.Errorf("pagination of %s does not terminate", path)
		}
		seen[next] = true

		var page []T
		header, err := c.getJSON(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		next = ""
		for _, link := range linkheader.Parse(header.Get("Link")).FilterByRel("next") {
			next = link.URL
			break
		}
	}
	return all, nil
}

// getJSON decodes the JSON body of a GET into out and returns the headers.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) (http.Header, error) {
	u, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &cs.TransportError{Method: req.Method, URL: redact(req.URL), Status: resp.StatusCode, Message: err.Error()}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", redact(req.URL), err)
	}
	return resp.Header, nil
}
