package output

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"cs-go/internal/model"
)

// Artifact is what a recipe produces for a link.
type Artifact struct {
	Suffix string
	Data   []byte
}

// Recipe renders an external link as a file, or declines.
type Recipe interface {
	Name() string
	Attempt(link *model.ExternalLink) (Artifact, bool)
}

// HTMLRedirect writes a page that refreshes to the link's URL.
type HTMLRedirect struct{}

func (HTMLRedirect) Name() string { return "html" }

func (HTMLRedirect) Attempt(link *model.ExternalLink) (Artifact, bool) {
	target, ok := linkTarget(link)
	if !ok {
		return Artifact{}, false
	}
	escaped := html.EscapeString(target)
	doc := fmt.Sprintf("<html>\n  <head>\n    <meta http-equiv=\"refresh\" content=\"0; url=%s\" />\n  </head>\n  <body>\n    <a href=\"%s\">%s</a>\n  </body>\n</html>\n",
		escaped, escaped, escaped)
	return Artifact{Suffix: ".html", Data: []byte(doc)}, true
}

// InternetShortcut writes a Windows .url file.
type InternetShortcut struct{}

func (InternetShortcut) Name() string { return "url" }

func (InternetShortcut) Attempt(link *model.ExternalLink) (Artifact, bool) {
	target, ok := linkTarget(link)
	if !ok || strings.ContainsAny(target, "\r\n") {
		return Artifact{}, false
	}
	return Artifact{Suffix: ".url", Data: []byte("[InternetShortcut]\r\nURL=" + target + "\r\n")}, true
}

// linkTarget returns the link's URL if it is absolute.
func linkTarget(link *model.ExternalLink) (string, bool) {
	raw := strings.TrimSpace(link.URL.String)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	return raw, true
}

// RecipesByName resolves configured recipe names in order.
func RecipesByName(names []string) ([]Recipe, error) {
	known := map[string]Recipe{
		HTMLRedirect{}.Name():     HTMLRedirect{},
		InternetShortcut{}.Name(): InternetShortcut{},
	}
	recipes := make([]Recipe, 0, len(names))
	for _, name := range names {
		r, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown link recipe: %s", name)
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}
