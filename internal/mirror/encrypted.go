package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cs-go/internal/cs"
)

// EncryptedSuffix is appended to the key of every encrypted artifact.
const EncryptedSuffix = ".age"

// EncryptingMirror encrypts artifacts before handing them to the next mirror.
type EncryptingMirror struct {
	next      cs.Mirror
	encryptor cs.Encryptor
}

func NewEncryptingMirror(next cs.Mirror, encryptor cs.Encryptor) *EncryptingMirror {
	return &EncryptingMirror{next: next, encryptor: encryptor}
}

// Put encrypts r in memory so the ciphertext length is known to the next
// mirror, then stores it under key plus EncryptedSuffix.
func (m *EncryptingMirror) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	counter := &countingReader{r: r}
	var buf bytes.Buffer
	if err := m.encryptor.Encrypt(counter, &buf); err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	if size >= 0 && counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return m.next.Put(ctx, key+EncryptedSuffix, &buf, int64(buf.Len()))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}

var _ cs.Mirror = (*EncryptingMirror)(nil)
