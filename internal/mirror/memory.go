package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"cs-go/internal/cs"
)

// MemoryMirror keeps artifacts in memory. Safe for concurrent use.
type MemoryMirror struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{objects: make(map[string][]byte)}
}

func (m *MemoryMirror) Put(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MemoryMirror) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *MemoryMirror) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ cs.Mirror = (*MemoryMirror)(nil)
