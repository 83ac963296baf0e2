// Package webhook validates signed inbound payloads. Verification runs over
// the exact raw request bytes, before any JSON parsing: re-serializing the
// body changes its byte layout and breaks the signature.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verify reports whether signature is a valid base64-encoded HMAC-SHA256 of
// body under secret. The comparison is constant time. Any missing input
// yields false; Verify never panics or errors.
func Verify(body []byte, signature, secret string) bool {
	if len(body) == 0 || signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
