package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Fingerprint returns the sha256 hex digest of v's canonical JSON form.
// encoding/json sorts map keys, so equal maps always hash the same.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ETag returns a fingerprint of v and logs on failure.
func ETag(logger *zap.Logger, label string, v any) string {
	return hashWithLogger(logger, label, func() (string, error) {
		return Fingerprint(v)
	})
}

func hashWithLogger(logger *zap.Logger, label string, fn func() (string, error)) string {
	etag, err := fn()
	if err != nil {
		if logger != nil {
			logger.Warn(fmt.Sprintf("%s hash failed", label), zap.Error(err))
		}
		return ""
	}
	return etag
}
