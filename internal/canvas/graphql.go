package canvas

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"cs-go/internal/cs"
)

var (
	//go:embed gql/all_courses.graphql
	allCoursesQuery string

	//go:embed gql/modules_items.graphql
	modulesItemsQuery string
)

// ListAllCourses returns every course visible to the user with its update
// time and term. The field is not paginated.
func (c *Client) ListAllCourses(ctx context.Context) ([]cs.RemoteCourse, error) {
	data, err := c.graphql(ctx, allCoursesQuery, nil)
	if err != nil {
		return nil, err
	}

	var out []cs.RemoteCourse
	for _, course := range data.Get("allCourses").Array() {
		out = append(out, cs.RemoteCourse{
			ID:        course.Get("_id").Int(),
			Name:      course.Get("name").String(),
			Code:      course.Get("courseCode").String(),
			Term:      course.Get("term.name").String(),
			UpdatedAt: course.Get("updatedAt").String(),
		})
	}
	return out, nil
}

// ListModulesWithItems returns all modules of a course. It requests pages
// until pageInfo.hasNextPage is false, passing each page's endCursor to the
// next request.
func (c *Client) ListModulesWithItems(ctx context.Context, courseID int64) ([]cs.RemoteModule, error) {
	var (
		modules []cs.RemoteModule
		after   *string
	)
	for requests := 0; ; requests++ {
		if requests >= c.maxRequests {
			return nil, fmt.Errorf("modules of course %d: pagination does not terminate", courseID)
		}

		vars := map[string]any{"course_id": strconv.FormatInt(courseID, 10), "after": after}
		data, err := c.graphql(ctx, modulesItemsQuery, vars)
		if err != nil {
			return nil, err
		}

		conn := data.Get("course.modulesConnection")
		if !conn.Exists() {
			return nil, fmt.Errorf("modules of course %d: response has no modulesConnection", courseID)
		}
		for _, node := range conn.Get("nodes").Array() {
			modules = append(modules, parseModule(node))
		}

		if !conn.Get("pageInfo.hasNextPage").Bool() {
			return modules, nil
		}
		cursor := conn.Get("pageInfo.endCursor").String()
		if cursor == "" || (after != nil && *after == cursor) {
			return nil, fmt.Errorf("modules of course %d: next page without a new cursor", courseID)
		}
		after = &cursor
	}
}

func parseModule(node gjson.Result) cs.RemoteModule {
	m := cs.RemoteModule{
		ID:   node.Get("_id").String(),
		Name: node.Get("name").String(),
	}
	for _, item := range node.Get("moduleItems").Array() {
		content := item.Get("content")
		if !content.Exists() || content.Type == gjson.Null {
			m.Items = append(m.Items, cs.RemoteModuleItem{})
			continue
		}
		m.Items = append(m.Items, cs.RemoteModuleItem{Content: &cs.RemoteContent{
			Type:      content.Get("type").String(),
			ID:        content.Get("_id").Int(),
			Title:     content.Get("name").String(),
			URL:       content.Get("url").String(),
			UpdatedAt: content.Get("updatedAt").String(),
		}})
	}
	return m
}

// graphql posts a query and returns its data. Errors reported in the
// response body become transport errors like any failed request.
func (c *Client) graphql(ctx context.Context, query string, vars map[string]any) (gjson.Result, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	u := c.base.ResolveReference(&url.URL{Path: graphqlEndpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &cs.TransportError{Method: req.Method, URL: redact(req.URL), Status: resp.StatusCode, Message: err.Error()}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON from %s", redact(req.URL))
	}

	if errs := gjson.GetBytes(body, "errors"); errs.Exists() && len(errs.Array()) > 0 {
		var msgs []string
		for _, e := range errs.Array() {
			msgs = append(msgs, e.Get("message").String())
		}
		return gjson.Result{}, &cs.TransportError{
			Method:  req.Method,
			URL:     redact(req.URL),
			Status:  resp.StatusCode,
			Message: "GQL error: " + strings.Join(msgs, ", "),
		}
	}
	return gjson.GetBytes(body, "data"), nil
}
