package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key builds a deterministic cache key for a query, namespaced by site
// and operation name so invalidation and debugging can reason about
// individual query shapes instead of one opaque blob.
func Key(siteID, op string, params ...string) string {
	h := sha256.New()
	h.Write([]byte(siteID))
	h.Write([]byte{0})
	h.Write([]byte(op))
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return fmt.Sprintf("query:%s:%s:%s", siteID, op, hex.EncodeToString(h.Sum(nil))[:16])
}
