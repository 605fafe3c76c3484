package session

import (
	"errors"
	log "log/slog"

	"voxm2m/pkg/framing"
	"voxm2m/pkg/m2m"
)

// Assembler folds control records into sessions. Sessions live until the
// assembler is dropped; one assembler serves exactly one record stream.
type Assembler struct {
	sessions map[string]*Session
}

type IngestStats struct {
	Applied int
	Dropped int
	Skipped int
}

func NewAssembler() *Assembler {
	return &Assembler{sessions: make(map[string]*Session)}
}

func (a *Assembler) Ingest(records []m2m.Record) IngestStats {
	var st IngestStats

	for _, rec := range records {
		msg, err := framing.Parse(rec.Content)
		if errors.Is(err, framing.ErrNotControl) {
			st.Skipped++
			continue
		}
		if err != nil {
			log.Warn("Dropping control message", "record", rec.ID, "err", err)
			st.Dropped++
			continue
		}

		a.apply(msg)
		st.Applied++
	}

	return st
}

func (a *Assembler) apply(msg *framing.Message) {
	s, ok := a.sessions[msg.Session]
	if !ok {
		s = newSession(msg.Session)
		a.sessions[msg.Session] = s
		log.Debug("Session opened", "session", msg.Session, "by", msg.Kind)
	}

	switch msg.Kind {
	case framing.START:
		s.Header = msg.Data
		s.HasHeader = true
		s.Total = msg.Total
	case framing.CHUNK:
		s.Chunks[msg.Index] = msg.Data
	case framing.END:
		s.Ended = true
	}
}

// Get returns a copy of the session state.
func (a *Assembler) Get(id string) (*Session, bool) {
	s, ok := a.sessions[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Sessions exposes the live map to the selector. Callers must not mutate it.
func (a *Assembler) Sessions() map[string]*Session {
	return a.sessions
}

func (a *Assembler) Len() int {
	return len(a.sessions)
}
