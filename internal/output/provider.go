// Package output maps catalog entities to paths under the output root and
// writes their artifacts.
package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/spf13/afero"

	"cs-go/internal/cs"
	"cs-go/internal/model"
)

// Streamer opens downloads. cs.Catalog satisfies it.
type Streamer interface {
	Stream(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Options configures a Provider. The zero value writes links with the html
// recipe, excludes nothing, mirrors nothing and prints no progress.
type Options struct {
	Recipes  []Recipe
	Ignore   []string
	Mirror   cs.Mirror
	Progress io.Writer
}

// Provider implements cs.Provider on an afero filesystem rooted at the
// output directory.
type Provider struct {
	fs       afero.Fs
	streamer Streamer
	recipes  []Recipe
	ignore   *Matcher
	mirror   cs.Mirror
	progress io.Writer
}

// NewProvider creates a Provider writing into fs. Use afero.NewBasePathFs to
// root an OS filesystem at the output path.
func NewProvider(fs afero.Fs, streamer Streamer, opts Options) *Provider {
	recipes := opts.Recipes
	if len(recipes) == 0 {
		recipes = []Recipe{HTMLRedirect{}}
	}
	return &Provider{
		fs:       fs,
		streamer: streamer,
		recipes:  recipes,
		ignore:   NewMatcher(opts.Ignore),
		mirror:   opts.Mirror,
		progress: opts.Progress,
	}
}

func (p *Provider) CoursePath(course *model.Course) string {
	return slugOr(course.Name.String, fmt.Sprintf("course-%d", course.ID))
}

func (p *Provider) FilePath(file *model.File, folder *model.Folder) string {
	var parts []string
	switch {
	case file.ModuleName.Valid:
		if s := Slugify(file.ModuleName.String); s != "" {
			parts = append(parts, s)
		}
	case folder != nil:
		for _, name := range strings.Split(folder.FullName.String, "/") {
			if s := Slugify(name); s != "" {
				parts = append(parts, s)
			}
		}
	}
	parts = append(parts, slugOr(file.DisplayName.String, fmt.Sprintf("file-%d", file.ID)))
	return path.Join(parts...)
}

func (p *Provider) ExternalLinkPath(link *model.ExternalLink) string {
	name := slugOr(link.Title.String, fmt.Sprintf("link-%d", link.ID))
	if dir := Slugify(link.ModuleName.String); dir != "" {
		return path.Join(dir, name)
	}
	return name
}

func (p *Provider) Excluded(relPath string) bool {
	return p.ignore.Match(relPath)
}

// MaterializeFile downloads rawURL into target. A failed or short download
// is a transport error and leaves nothing at target.
func (p *Provider) MaterializeFile(ctx context.Context, rawURL, target string) error {
	body, size, err := p.streamer.Stream(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	src := &readTracker{r: newProgressReader(body, p.progress, target, size)}
	written, err := writeAtomic(p.fs, target, src, size)
	if err != nil {
		if src.err != nil || errors.Is(err, errShortWrite) {
			return &cs.TransportError{Method: http.MethodGet, URL: stripQuery(rawURL), Message: err.Error()}
		}
		return err
	}

	return p.mirrorFile(ctx, target, written)
}

// MaterializeExternalLink writes the first artifact a recipe accepts to
// target plus the recipe's suffix.
func (p *Provider) MaterializeExternalLink(ctx context.Context, link *model.ExternalLink, target string) (bool, error) {
	for _, r := range p.recipes {
		art, ok := r.Attempt(link)
		if !ok {
			continue
		}
		dest := target + art.Suffix
		if _, err := writeAtomic(p.fs, dest, bytes.NewReader(art.Data), int64(len(art.Data))); err != nil {
			return false, fmt.Errorf("recipe %s: %w", r.Name(), err)
		}
		if err := p.mirrorFile(ctx, dest, int64(len(art.Data))); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (p *Provider) mirrorFile(ctx context.Context, name string, size int64) error {
	if p.mirror == nil {
		return nil
	}
	f, err := p.fs.Open(name)
	if err != nil {
		return fmt.Errorf("reopening %s: %w", name, err)
	}
	defer f.Close()

	if err := p.mirror.Put(ctx, name, f, size); err != nil {
		return &cs.MirrorError{Key: name, Err: err}
	}
	return nil
}

var errShortWrite = errors.New("short write")

// writeAtomic writes r to name through a temporary file in the same
// directory and renames it into place. size < 0 skips the length check.
func writeAtomic(fs afero.Fs, name string, r io.Reader, size int64) (int64, error) {
	dir := path.Dir(name)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	done := false
	defer func() {
		if !done {
			fs.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return written, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close temp file: %w", err)
	}
	if size >= 0 && written != size {
		return written, fmt.Errorf("%w: expected %d bytes, got %d", errShortWrite, size, written)
	}

	if err := fs.Rename(tmpName, name); err != nil {
		return written, fmt.Errorf("failed to rename temp file: %w", err)
	}
	done = true
	return written, nil
}

// readTracker remembers the first read error so it can be told apart from
// local write errors.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

func slugOr(name, fallback string) string {
	if s := Slugify(name); s != "" {
		return s
	}
	return fallback
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

var _ cs.Provider = (*Provider)(nil)
