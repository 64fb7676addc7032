// Package fingerprint derives privacy-preserving, daily-rotated visitor
// IDs. Both functions are pure and deterministic.
package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const saltKey = "mallard-metrics-salt"

// DailySalt derives the process-level visitor salt for one UTC day from
// the configured secret. Stable across restarts for the same
// (secret, date) pair; rotates at UTC midnight so visitor IDs are only
// linkable within a single day.
func DailySalt(secret, date string) string {
	mac := hmac.New(sha256.New, []byte(saltKey))
	mac.Write([]byte(secret + ":" + date))
	return hex.EncodeToString(mac.Sum(nil))
}

// Fingerprint computes the 64-hex-char visitor ID for one request. Empty
// ip or ua is permitted; the function never errors.
func Fingerprint(ip, ua, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(ip + "|" + ua))
	return hex.EncodeToString(mac.Sum(nil))
}
