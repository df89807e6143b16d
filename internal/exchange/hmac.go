package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// signL2 builds the POLY_SIGNATURE header: HMAC-SHA256 over
// timestamp + method + path + body, keyed with the base64 API secret.
func signL2(secret, timestamp, method, path string, body []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(normalizeSecret(secret))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)

	// URL-safe alphabet, padding kept.
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return strings.NewReplacer("+", "-", "/", "_").Replace(sig), nil
}

// normalizeSecret accepts standard or URL-safe base64, with or without padding.
func normalizeSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	secret = strings.NewReplacer("-", "+", "_", "/").Replace(secret)
	secret = strings.TrimRight(secret, "=")
	if rem := len(secret) % 4; rem != 0 {
		secret += strings.Repeat("=", 4-rem)
	}
	return secret
}
