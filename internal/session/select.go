package session

import (
	"slices"

	"voxm2m/pkg/util"
)

// Cursor remembers what the pipeline has already handled. It is owned by a
// single poller and never shared between sources.
type Cursor struct {
	LastFingerprint string
	LastSessionID   string
}

// Select picks the newest complete session above the cursor's watermark.
// Once a session is consumed, it and every older id are superseded for good,
// even when they are still complete and sitting in the map.
func Select(sessions map[string]*Session, cur Cursor) (string, *Session, bool) {
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return util.CompareNumeric(b, a)
	})

	for _, id := range ids {
		if cur.LastSessionID != "" && util.CompareNumeric(id, cur.LastSessionID) <= 0 {
			break
		}
		if s := sessions[id]; s.Complete() {
			return id, s, true
		}
	}

	return "", nil, false
}
