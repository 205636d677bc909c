package bootstrap

import (
	"log/slog"

	"github.com/caseworks/report-engine/internal/data"
)

// CreateTokenCipher builds the at-rest cipher for stored bearer tokens from a
// hex-encoded AES-256 key. An empty or invalid key yields a passthrough
// cipher (with warning log) so dev environments run without one.
func CreateTokenCipher(key string, logger *slog.Logger) *data.TokenCipher {
	if key == "" {
		if logger != nil {
			logger.Warn("token encryption key is empty, storing bearer tokens unencrypted")
		}
		cipher, _ := data.NewTokenCipher("")
		return cipher
	}

	cipher, err := data.NewTokenCipher(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create token cipher, storing bearer tokens unencrypted", "error", err)
		}
		cipher, _ = data.NewTokenCipher("")
		return cipher
	}

	return cipher
}
