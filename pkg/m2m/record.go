package m2m

import (
	"encoding/json"
	"fmt"
	log "log/slog"
)

// Record is one content instance (m2m:cin) read from the store.
type Record struct {
	ID           string // ri
	Content      string // con
	CreatedAt    string // ct
	ModifiedAt   string // lt
	ParentID     string // pi
	ResourceName string // rn
	StateTag     string // st
	ContentSize  string // cs
}

const (
	keyContainer = "m2m:cnt"
	keyInstance  = "m2m:cin"
	keyResponse  = "m2m:rsp"
	keyContent   = "pc"
	keyResults   = "results"
)

// Extract normalizes the envelope shapes a CSE answers with into a flat
// list of records. Unknown shapes yield no records.
func Extract(raw any) []Record {
	items := envelope(raw, true)

	out := make([]Record, 0, len(items))
	for _, it := range items {
		rec, ok := toRecord(it)
		if !ok {
			continue
		}
		out = append(out, rec)
	}

	return out
}

func envelope(raw any, nested bool) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		if cnt, ok := v[keyContainer].(map[string]any); ok {
			if items := instances(cnt[keyInstance]); items != nil {
				return items
			}
		}
		if cin, ok := v[keyInstance].(map[string]any); ok {
			return []any{cin}
		}
		if nested {
			if rsp, ok := v[keyResponse].(map[string]any); ok {
				if items := envelope(rsp[keyContent], false); items != nil {
					return items
				}
			}
			if results, ok := v[keyResults].([]any); ok {
				var items []any
				for _, r := range results {
					if m, ok := r.(map[string]any); ok {
						if cin, ok := m[keyInstance].(map[string]any); ok {
							items = append(items, cin)
						}
					}
				}
				return items
			}
		}
	}

	return nil
}

func instances(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case map[string]any:
		return []any{x}
	default:
		return nil
	}
}

func toRecord(v any) (Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		log.Warn("Dropping non-object record", "record", v)
		return Record{}, false
	}

	id := field(m, "ri")
	if id == "" {
		log.Warn("Dropping record without id", "rn", field(m, "rn"))
		return Record{}, false
	}

	return Record{
		ID:           id,
		Content:      field(m, "con"),
		CreatedAt:    field(m, "ct"),
		ModifiedAt:   field(m, "lt"),
		ParentID:     field(m, "pi"),
		ResourceName: field(m, "rn"),
		StateTag:     field(m, "st"),
		ContentSize:  field(m, "cs"),
	}, true
}

func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
