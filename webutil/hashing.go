package webutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMACSHA256 returns the hex-encoded HMAC-SHA256 of data under secret.
func SignHMACSHA256(secret, data []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// SecureCompare reports whether two strings are equal without leaking the
// position of the first difference through timing.
func SecureCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
