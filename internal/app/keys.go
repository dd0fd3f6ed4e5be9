package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"

	"cs-go/internal/config"
	"cs-go/internal/cs"
	"cs-go/internal/encryption"
	"cs-go/internal/mirror"
)

// SetupKeys generates the age key pair used to encrypt mirrored artifacts.
// The private key is sealed with passphrase. Existing keys are never
// overwritten.
func SetupKeys(fs afero.Fs, cfg *config.Config, passphrase string) error {
	enc := encryption.NewAgeEncryptor(fs, cfg.Encryption)
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// DecryptFile decrypts a mirrored object at in and writes the plaintext to out.
func DecryptFile(fs afero.Fs, cfg *config.Config, passphrase, in, out string) error {
	dc, err := unlock(fs, cfg, passphrase)
	if err != nil {
		return err
	}

	src, err := fs.Open(in)
	if err != nil {
		return fmt.Errorf("opening %s: %w", in, err)
	}
	defer src.Close()

	return decryptTo(fs, dc, src, in, out)
}

// DecryptMirrored fetches key from the configured mirror and writes the
// plaintext to out. key is the course-relative path; the encrypted suffix
// is added when missing.
func DecryptMirrored(ctx context.Context, fs afero.Fs, cfg *config.Config, passphrase, key, out string) error {
	r, err := mirror.NewReaderFromConfig(ctx, cfg.Mirror)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(key, mirror.EncryptedSuffix) {
		key += mirror.EncryptedSuffix
	}

	dc, err := unlock(fs, cfg, passphrase)
	if err != nil {
		return err
	}

	var sealed bytes.Buffer
	if err := r.Get(ctx, key, &sealed); err != nil {
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	return decryptTo(fs, dc, &sealed, key, out)
}

func unlock(fs afero.Fs, cfg *config.Config, passphrase string) (cs.DecryptionContext, error) {
	dc, err := encryption.NewAgeEncryptor(fs, cfg.Encryption).Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	return dc, nil
}

// decryptTo writes the plaintext of src to out. Nothing is left at out on
// failure.
func decryptTo(fs afero.Fs, dc cs.DecryptionContext, src io.Reader, name, out string) error {
	dst, err := fs.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}

	if err := dc.Decrypt(src, dst); err != nil {
		dst.Close()
		fs.Remove(out)
		return fmt.Errorf("decrypting %s: %w", name, err)
	}
	return dst.Close()
}
