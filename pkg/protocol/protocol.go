package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"slices"
	"strings"
	"time"
)

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  time.Duration
	EmitOut func(*Message)
}

// Protocol speaks the hub line format TO:VERB:NOUN[:ARGS...]:FROM over a
// websocket.
type Protocol struct {
	ws      *WebSocket
	shard   string
	emitOut func(*Message)
}

func NewProtocol(cfg PtclConfig) (*Protocol, error) {
	if !isToken(cfg.Shard) {
		return nil, fmt.Errorf("invalid shard name %q", cfg.Shard)
	}

	ws, err := NewWebSocket(cfg.Url, cfg.Reconn)
	if err != nil {
		log.Error("Invalid hub address", "url", cfg.Url, "err", err)
		return nil, err
	}

	return &Protocol{
		shard:   cfg.Shard,
		ws:      ws,
		emitOut: cfg.EmitOut,
	}, nil
}

func (ptcl *Protocol) EmitOut(f func(*Message)) {
	ptcl.emitOut = f
}

// Transmit sends v with this shard as sender. v is a Message, a
// pre-joined string or the fields as a []string.
func (ptcl *Protocol) Transmit(v any) error {
	frame, err := ptcl.frame(v)
	if err != nil {
		return err
	}
	if err := ptcl.ws.Write([]byte(frame)); err != nil {
		log.Error("Failed to transmit", "frame", frame, "err", err)
		return err
	}
	return nil
}

func (ptcl *Protocol) frame(v any) (string, error) {
	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		return m.String(), nil
	case *Message:
		c := *m
		c.From = ptcl.shard
		return c.String(), nil
	case string:
		return m + ":" + ptcl.shard, nil
	case []string:
		return strings.Join(append(slices.Clone(m), ptcl.shard), ":"), nil
	}
	return "", fmt.Errorf("unsupported message type %T", v)
}

// Run dials the hub and reads from it until ctx is cancelled, reconnecting
// on close. Messages addressed to this shard are handed to the EmitOut
// callback. Transmit fails until the first dial succeeds.
func (ptcl *Protocol) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ptcl.ws.Close()
	}()

	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return
		}

		switch in.kind {
		case CONN_CLOSE:
			if errors.Is(in.err, errNotConnected) {
				log.Info("Connecting to hub", "url", ptcl.ws.url)
			} else {
				log.Warn("Hub connection closed, reconnecting", "url", ptcl.ws.url, "err", in.err)
			}
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}
			log.Info("Connected to hub", "url", ptcl.ws.url)

		case READ_FAILURE:
			log.Error("Failed to read from hub", "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := Parse(string(in.msg))
			if err != nil {
				log.Warn("Dropping hub frame", "frame", string(in.msg), "err", err)
				continue
			}

			if ptcl.emitOut != nil {
				ptcl.emitOut(msg)
			}
		}
	}
}

func (ptcl *Protocol) Close() error {
	return ptcl.ws.Close()
}

func (ptcl *Protocol) checkRecipient(frame []byte) bool {
	to, _, _ := strings.Cut(string(frame), ":")
	return to == ptcl.shard || to == Broadcast
}

// Broadcast addresses every shard on the hub.
const Broadcast = "ALL"

var (
	ErrEmpty     = errors.New("empty frame")
	ErrMalformed = errors.New("malformed frame")
)

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-Fa-f]{2}$`)
)

func isToken(s string) bool { return tokenRe.MatchString(s) }

// isAddress accepts shard names and two-digit hex node ids.
func isAddress(s string) bool { return isToken(s) || hexIDRe.MatchString(s) }

// Parse reads one TO:VERB:NOUN[:ARGS...]:FROM frame. VERB and NOUN are
// upper cased.
func Parse(line string) (*Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmpty
	}
	if strings.ContainsAny(line, " \t\r\n") {
		return nil, fmt.Errorf("%w: whitespace inside frame", ErrMalformed)
	}

	f := strings.Split(line, ":")
	if len(f) < 4 {
		return nil, fmt.Errorf("%w: %d fields, want at least 4", ErrMalformed, len(f))
	}

	msg := &Message{
		To:   f[0],
		Verb: strings.ToUpper(f[1]),
		Noun: strings.ToUpper(f[2]),
		Args: slices.Clone(f[3 : len(f)-1]),
		From: f[len(f)-1],
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) validate() error {
	switch {
	case !isAddress(m.To) && m.To != Broadcast:
		return fmt.Errorf("%w: bad recipient %q", ErrMalformed, m.To)
	case !isAddress(m.From):
		return fmt.Errorf("%w: bad sender %q", ErrMalformed, m.From)
	case !isToken(m.Verb):
		return fmt.Errorf("%w: bad verb %q", ErrMalformed, m.Verb)
	case !isToken(m.Noun):
		return fmt.Errorf("%w: bad noun %q", ErrMalformed, m.Noun)
	}
	for i, a := range m.Args {
		if !isToken(a) {
			return fmt.Errorf("%w: bad arg %d %q", ErrMalformed, i, a)
		}
	}
	return nil
}

func (m *Message) String() string {
	f := slices.Concat([]string{m.To, m.Verb, m.Noun}, m.Args, []string{m.From})
	return strings.Join(f, ":")
}

// Ack builds an OK reply to the sender of m. From is filled in on Transmit.
func (m *Message) Ack(noun string, args ...string) *Message {
	return &Message{To: m.From, Verb: "OK", Noun: noun, Args: args}
}

// Nack builds an ERR reply to the sender of m.
func (m *Message) Nack(reason string, args ...string) *Message {
	return &Message{To: m.From, Verb: "ERR", Noun: reason, Args: args}
}
