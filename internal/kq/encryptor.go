package kq

import "io"

// Encryptor protects health exports. Encryption needs only the public key;
// decryption requires unlocking the private key with a passphrase.
type Encryptor interface {
	// Setup generates a key pair, storing the private key encrypted with
	// passphrase. Called by `kq config keys init`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context able to decrypt
	// exports for the rest of the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
