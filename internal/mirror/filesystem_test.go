package mirror

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestNewFileSystemMirror(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nas", "canvas")

	m, err := NewFileSystemMirror(root)
	if err != nil {
		t.Fatalf("NewFileSystemMirror() error = %v", err)
	}
	if err := m.Put(context.Background(), "intro/week 1/a.pdf", strings.NewReader("pdf"), 3); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "intro", "week 1", "a.pdf"))
	if err != nil {
		t.Fatalf("mirrored file not on disk: %v", err)
	}
	if string(data) != "pdf" {
		t.Errorf("content = %q, want %q", data, "pdf")
	}
}

func TestFileSystemMirror_Put(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		size    int64
		wantErr bool
	}{
		{name: "store content", data: "hello world", size: 11},
		{name: "size mismatch", data: "hello", size: 100, wantErr: true},
		{name: "empty content", data: "", size: 0},
		{name: "unknown size", data: "abc", size: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			m := NewFileSystemMirrorOn(fs)

			err := m.Put(context.Background(), "course/a.txt", strings.NewReader(tt.data), tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}

			exists, _ := afero.Exists(fs, "course/a.txt")
			if exists == tt.wantErr {
				t.Errorf("file exists = %v after Put with wantErr %v", exists, tt.wantErr)
			}

			entries, _ := afero.ReadDir(fs, "course")
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".tmp-") {
					t.Errorf("temporary file %s left behind", e.Name())
				}
			}
		})
	}
}

func TestFileSystemMirror_PutOverwrites(t *testing.T) {
	m := NewFileSystemMirrorOn(afero.NewMemMapFs())
	ctx := context.Background()

	if err := m.Put(ctx, "a.txt", strings.NewReader("version 1"), 9); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := m.Put(ctx, "a.txt", strings.NewReader("version 2"), 9); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	var buf bytes.Buffer
	if err := m.Get(ctx, "a.txt", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != "version 2" {
		t.Errorf("content = %q, want %q", buf.String(), "version 2")
	}
}

func TestFileSystemMirror_GetMissing(t *testing.T) {
	m := NewFileSystemMirrorOn(afero.NewMemMapFs())

	var buf bytes.Buffer
	err := m.Get(context.Background(), "missing.txt", &buf)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFileSystemMirror_CanceledContext(t *testing.T) {
	m := NewFileSystemMirrorOn(afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Put(ctx, "a.txt", strings.NewReader("x"), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
}
