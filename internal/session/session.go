package session

import "voxm2m/pkg/util"

// Session is the assembly state of one chunked upload. Header and chunks
// keep the base64 text as received; Build decodes them.
type Session struct {
	ID        string
	Header    string
	HasHeader bool
	Total     int
	Chunks    map[int]string
	Ended     bool
}

func newSession(id string) *Session {
	return &Session{ID: id, Chunks: make(map[int]string)}
}

// Complete reports whether every declared piece of the upload is present.
func (s *Session) Complete() bool {
	if s == nil || !s.HasHeader || !s.Ended || s.Total <= 0 {
		return false
	}
	if len(s.Chunks) != s.Total {
		return false
	}
	for i := 0; i < s.Total; i++ {
		if _, ok := s.Chunks[i]; !ok {
			return false
		}
	}
	return true
}

// Missing lists the indexes in [0, Total) that have not arrived yet.
func (s *Session) Missing() []int {
	var out []int
	for i := 0; i < s.Total; i++ {
		if _, ok := s.Chunks[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Indexes returns the received chunk indexes in ascending order.
func (s *Session) Indexes() []int {
	return util.SortedKeys(s.Chunks)
}

func (s *Session) clone() *Session {
	c := *s
	c.Chunks = make(map[int]string, len(s.Chunks))
	for k, v := range s.Chunks {
		c.Chunks[k] = v
	}
	return &c
}
