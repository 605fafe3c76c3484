package framing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind uint

const (
	START Kind = iota
	CHUNK
	END
)

const (
	StartTag = "AUDIO_START"
	ChunkTag = "AUDIO_CHUNK"
	EndTag   = "AUDIO_END"
)

func (k Kind) String() string {
	switch k {
	case START:
		return StartTag
	case CHUNK:
		return ChunkTag
	case END:
		return EndTag
	default:
		return fmt.Sprintf("Kind(%d)", uint(k))
	}
}

// Message is one decoded control record. Total is set for START, Index for
// CHUNK; Data holds the base64 text of the header or chunk as received.
type Message struct {
	Kind    Kind
	Session string
	Total   int
	Index   int
	Data    string
}

// ErrNotControl is returned by Parse for content that is not a control
// message at all. Callers skip such records silently.
var ErrNotControl = errors.New("not a control message")

func IsControl(content string) bool {
	return strings.HasPrefix(content, StartTag+":") ||
		strings.HasPrefix(content, ChunkTag+":") ||
		strings.HasPrefix(content, EndTag+":")
}

func Parse(content string) (*Message, error) {
	switch {
	case strings.HasPrefix(content, StartTag+":"):
		parts := strings.SplitN(content, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed %s: got %d fields, want 4", StartTag, len(parts))
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("malformed %s: empty session id", StartTag)
		}
		total, err := parseCount(parts[2])
		if err != nil {
			return nil, fmt.Errorf("malformed %s total %q: %w", StartTag, parts[2], err)
		}
		return &Message{Kind: START, Session: parts[1], Total: total, Data: parts[3]}, nil

	case strings.HasPrefix(content, ChunkTag+":"):
		parts := strings.SplitN(content, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed %s: got %d fields, want 4", ChunkTag, len(parts))
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("malformed %s: empty session id", ChunkTag)
		}
		idx, err := parseCount(parts[2])
		if err != nil {
			return nil, fmt.Errorf("malformed %s index %q: %w", ChunkTag, parts[2], err)
		}
		return &Message{Kind: CHUNK, Session: parts[1], Index: idx, Data: parts[3]}, nil

	case strings.HasPrefix(content, EndTag+":"):
		parts := strings.SplitN(content, ":", 2)
		if parts[1] == "" {
			return nil, fmt.Errorf("malformed %s: empty session id", EndTag)
		}
		return &Message{Kind: END, Session: parts[1]}, nil
	}

	return nil, ErrNotControl
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func (m *Message) String() string {
	switch m.Kind {
	case START:
		return strings.Join([]string{StartTag, m.Session, strconv.Itoa(m.Total), m.Data}, ":")
	case CHUNK:
		return strings.Join([]string{ChunkTag, m.Session, strconv.Itoa(m.Index), m.Data}, ":")
	default:
		return EndTag + ":" + m.Session
	}
}

// Split frames a clip for upload: the first headerLen bytes travel in the
// START record, the rest in CHUNK records of at most chunkSize bytes.
func Split(session string, clip []byte, headerLen, chunkSize int) ([]Message, error) {
	if session == "" || strings.Contains(session, ":") {
		return nil, fmt.Errorf("invalid session id %q", session)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if headerLen < 0 || headerLen > len(clip) {
		return nil, fmt.Errorf("header length %d out of range for %d bytes", headerLen, len(clip))
	}

	header, body := clip[:headerLen], clip[headerLen:]

	var chunks []Message
	for off, i := 0, 0; off < len(body); off, i = off+chunkSize, i+1 {
		end := min(off+chunkSize, len(body))
		chunks = append(chunks, Message{
			Kind:    CHUNK,
			Session: session,
			Index:   i,
			Data:    base64.StdEncoding.EncodeToString(body[off:end]),
		})
	}
	if len(chunks) == 0 {
		return nil, errors.New("clip has no data after the header")
	}

	out := make([]Message, 0, len(chunks)+2)
	out = append(out, Message{
		Kind:    START,
		Session: session,
		Total:   len(chunks),
		Data:    base64.StdEncoding.EncodeToString(header),
	})
	out = append(out, chunks...)
	out = append(out, Message{Kind: END, Session: session})

	return out, nil
}
