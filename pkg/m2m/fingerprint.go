package m2m

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	log "log/slog"
)

// EmptyFingerprint is the digest of an absent or empty response. It is not
// valid hex, so it never collides with a real digest.
const EmptyFingerprint = "empty_data"

// Fingerprint hashes the whole response. encoding/json writes map keys in
// sorted order, which makes the serialization independent of field order.
func Fingerprint(raw any) string {
	if isEmpty(raw) {
		return EmptyFingerprint
	}

	b, err := json.Marshal(raw)
	if err != nil {
		// fmt prints maps with sorted keys, so this stays stable and still
		// tells different values apart.
		log.Warn("Response not JSON encodable, hashing its Go syntax", "err", err)
		b = []byte(fmt.Sprintf("%#v", raw))
	}

	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	default:
		return false
	}
}
