package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"cs-go/internal/cs"
	"cs-go/internal/encryption"
)

// sealPrefix starts every object sealed by FakeEncryptor.
var sealPrefix = []byte("cs-sealed\n")

// ErrWrongPassphrase is returned by FakeEncryptor.Unlock.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// FakeEncryptor seals mirrored artifacts without age keys. A sealed object
// is sealPrefix followed by the plaintext, so a test can still read what was
// mirrored. Unlock only accepts the passphrase the encryptor was created
// with. Safe for concurrent use.
type FakeEncryptor struct {
	passphrase string

	mu     sync.Mutex
	sealed int
}

var _ cs.Encryptor = (*FakeEncryptor)(nil)

func NewFakeEncryptor(passphrase string) *FakeEncryptor {
	return &FakeEncryptor{passphrase: passphrase}
}

// Setup behaves like the age encryptor with keys on disk: it refuses.
func (e *FakeEncryptor) Setup(string) error {
	return encryption.ErrKeysExist
}

func (e *FakeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealPrefix); err != nil {
		return fmt.Errorf("writing seal: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	e.mu.Lock()
	e.sealed++
	e.mu.Unlock()
	return nil
}

// Sealed returns how many objects Encrypt has written.
func (e *FakeEncryptor) Sealed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sealed
}

func (e *FakeEncryptor) Unlock(passphrase string) (cs.DecryptionContext, error) {
	if passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return fakeDecryptor{}, nil
}

func (e *FakeEncryptor) IsConfigured() bool { return true }

// IsSealed reports whether data was written by FakeEncryptor.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealPrefix)
}

type fakeDecryptor struct{}

func (fakeDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	prefix := make([]byte, len(sealPrefix))
	if _, err := io.ReadFull(r, prefix); err != nil {
		return fmt.Errorf("reading seal: %w", err)
	}
	if !bytes.Equal(prefix, sealPrefix) {
		return fmt.Errorf("object was not sealed by this encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
