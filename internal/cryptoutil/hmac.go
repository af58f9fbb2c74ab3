package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACSHA256Hex computes the hex-encoded HMAC-SHA-256 of payload under key.
func HMACSHA256Hex(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256Hex recomputes the HMAC and compares it to want in
// constant time, as spec §4.2 requires for policy stamp verification.
func VerifyHMACSHA256Hex(key, payload []byte, want string) bool {
	got, err := hex.DecodeString(want)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}
