package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"

	"cs-go/internal/cs"
)

// FileSystemMirror replicates artifacts into a directory tree, typically a
// mounted network share. Keys are output-relative paths and keep their
// layout under the root.
type FileSystemMirror struct {
	fs afero.Fs
}

// NewFileSystemMirror creates a mirror writing under root on the OS filesystem.
func NewFileSystemMirror(root string) (*FileSystemMirror, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror root: %w", err)
	}
	return NewFileSystemMirrorOn(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// NewFileSystemMirrorOn creates a mirror writing into fs.
func NewFileSystemMirrorOn(fs afero.Fs) *FileSystemMirror {
	return &FileSystemMirror{fs: fs}
}

// Put writes r to key through a temporary file and renames it into place.
func (m *FileSystemMirror) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := path.Dir(key)
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := afero.TempFile(m.fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			m.fs.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := m.fs.Rename(tmpName, key); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Get copies the artifact stored under key to w.
func (m *FileSystemMirror) Get(_ context.Context, key string, w io.Writer) error {
	f, err := m.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

var _ cs.Mirror = (*FileSystemMirror)(nil)
