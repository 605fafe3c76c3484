package session

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// BuildError means the session data is corrupt, not merely incomplete.
type BuildError struct {
	Session string
	Part    string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("build session %s: %s", e.Session, e.Part)
	}
	return fmt.Sprintf("build session %s: %s: %v", e.Session, e.Part, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Build concatenates the decoded header and the chunks in index order.
func Build(s *Session) ([]byte, error) {
	if s == nil {
		return nil, &BuildError{Part: "nil session"}
	}
	if !s.HasHeader {
		return nil, &BuildError{Session: s.ID, Part: "missing header"}
	}
	if missing := s.Missing(); len(missing) > 0 {
		return nil, &BuildError{Session: s.ID, Part: fmt.Sprintf("missing chunks %v", missing)}
	}

	header, err := decodeB64(s.Header)
	if err != nil {
		return nil, &BuildError{Session: s.ID, Part: "header", Err: err}
	}

	out := append([]byte(nil), header...)

	for _, idx := range s.Indexes() {
		b, err := decodeB64(s.Chunks[idx])
		if err != nil {
			return nil, &BuildError{Session: s.ID, Part: fmt.Sprintf("chunk %d", idx), Err: err}
		}
		out = append(out, b...)
	}

	return out, nil
}

func decodeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
