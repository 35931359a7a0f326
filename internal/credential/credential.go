// Package credential resolves the opaque credential blobs stored on
// mail accounts. Two blob forms are supported: a base64-encoded
// secret, and a "keyring:" reference into the operating system
// keyring for installations that prefer not to keep secrets in the
// database at all.
package credential

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// keyringScheme prefixes blobs that reference the system keyring.
const keyringScheme = "keyring:"

// Resolve decodes a stored credential blob into a usable secret.
func Resolve(blob string) (string, error) {
	if key, ok := strings.CutPrefix(blob, keyringScheme); ok {
		return Get(key)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decoding credential blob: %w", err)
	}
	return string(raw), nil
}

// Encode returns the blob form of a plain secret for database storage.
func Encode(secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(secret))
}

// EncodeKeyringRef stores the secret in the system keyring under key
// and returns the blob that references it.
func EncodeKeyringRef(key, secret string) (string, error) {
	if err := Set(key, secret); err != nil {
		return "", err
	}
	return keyringScheme + key, nil
}

// DeleteRef removes the keyring entry a blob references. Blobs that
// hold the secret inline are a no-op.
func DeleteRef(blob string) error {
	if key, ok := strings.CutPrefix(blob, keyringScheme); ok {
		return Delete(key)
	}
	return nil
}
