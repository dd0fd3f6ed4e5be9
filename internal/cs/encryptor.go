package cs

import "io"

// Encryptor encrypts mirrored artifacts and unlocks them for decryption.
// Encryption uses the public key only, so cycles run unattended.
// Decryption needs a passphrase to unlock the private key.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and
	// encrypts the private key with passphrase. Called by `cs keys init`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory. The key is
// never written to disk.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
