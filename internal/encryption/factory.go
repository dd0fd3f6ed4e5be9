package encryption

import (
	"fmt"

	"github.com/spf13/afero"

	"cs-go/internal/config"
	"cs-go/internal/cs"
)

// NewEncryptorFromConfig returns the encryptor for mirrored artifacts, or nil
// when the mirror does not encrypt. Keys must already exist.
func NewEncryptorFromConfig(fs afero.Fs, cfg *config.Config) (cs.Encryptor, error) {
	if !cfg.Mirror.Encrypt {
		return nil, nil
	}
	enc := NewAgeEncryptor(fs, cfg.Encryption)
	if !enc.IsConfigured() {
		return nil, &cs.ConfigurationError{
			Key:    "encryption",
			Reason: fmt.Sprintf("no keys at %s; run `cs keys init`", cfg.Encryption.PublicKeyPath),
		}
	}
	return enc, nil
}
