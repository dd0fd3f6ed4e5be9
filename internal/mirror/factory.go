// Package mirror replicates materialized artifacts to a second location.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cs-go/internal/config"
	"cs-go/internal/cs"
)

// ErrNotFound is returned by Get for a key that was never mirrored.
var ErrNotFound = errors.New("not found in mirror")

// NewMirrorFromConfig creates the mirror selected by cfg.Type. It returns
// nil when mirroring is disabled. A non-nil encryptor wraps the mirror so
// artifacts are stored encrypted.
func NewMirrorFromConfig(ctx context.Context, cfg config.MirrorConfig, encryptor cs.Encryptor) (cs.Mirror, error) {
	var m cs.Mirror
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		m = NewMemoryMirror()
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, &cs.ConfigurationError{Key: "mirror.fs_root", Reason: "required for filesystem mirror"}
		}
		fsm, err := NewFileSystemMirror(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		m = fsm
	case "s3":
		s3m, err := NewS3Mirror(ctx, cfg)
		if err != nil {
			return nil, err
		}
		m = s3m
	default:
		return nil, &cs.ConfigurationError{Key: "mirror.type", Reason: fmt.Sprintf("unknown mirror type: %s", cfg.Type)}
	}

	if encryptor != nil {
		m = NewEncryptingMirror(m, encryptor)
	}
	return m, nil
}

// Reader fetches stored artifacts by key. Every mirror type implements it.
type Reader interface {
	Get(ctx context.Context, key string, w io.Writer) error
}

// NewReaderFromConfig opens the configured mirror for reading. Bytes are
// returned as stored, so encrypted artifacts come back encrypted.
func NewReaderFromConfig(ctx context.Context, cfg config.MirrorConfig) (Reader, error) {
	m, err := NewMirrorFromConfig(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &cs.ConfigurationError{Key: "mirror.type", Reason: "no mirror configured"}
	}
	r, ok := m.(Reader)
	if !ok {
		return nil, fmt.Errorf("mirror type %s cannot be read", cfg.Type)
	}
	return r, nil
}
