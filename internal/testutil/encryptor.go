package testutil

import (
	"kaloriq-go/internal/encryption"
	"kaloriq-go/internal/kq"
)

// NewTestEncryptor returns the deterministic test encryptor.
func NewTestEncryptor() kq.Encryptor {
	return encryption.NewTestEncryptor()
}
