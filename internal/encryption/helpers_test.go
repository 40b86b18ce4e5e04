package encryption

import (
	"fmt"

	"kaloriq-go/internal/config"
)

func newEncryptionConfig(typ string, keyPaths bool) config.EncryptionConfig {
	cfg := config.EncryptionConfig{Type: typ}
	if keyPaths {
		cfg.PublicKeyPath = "/nonexistent/kq.pub"
		cfg.PrivateKeyPath = "/nonexistent/kq.key"
	}
	return cfg
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
