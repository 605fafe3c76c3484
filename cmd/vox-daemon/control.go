package main

import (
	"fmt"
	log "log/slog"
	"strings"

	"voxm2m/internal/ipc"
	"voxm2m/internal/poller"
	"voxm2m/pkg/protocol"
)

type source interface {
	Name() string
	Status() poller.Status
	Trigger()
}

type transmitter interface {
	Transmit(v any) error
}

// control answers vox-ctl requests and hub messages.
type control struct {
	sources []source
}

func newControl(pollers []*poller.Poller) *control {
	c := &control{}
	for _, p := range pollers {
		c.sources = append(c.sources, p)
	}
	return c
}

// pick returns all sources for an empty name. Hub nouns arrive upper cased,
// so names match case-insensitively.
func (c *control) pick(name string) ([]source, error) {
	if name == "" {
		return c.sources, nil
	}
	for _, s := range c.sources {
		if strings.EqualFold(s.Name(), name) {
			return []source{s}, nil
		}
	}
	return nil, fmt.Errorf("unknown source %q", name)
}

func (c *control) ipcHandler(msg ipc.ControlMessage) ipc.Reply {
	picked, err := c.pick(msg.Source)
	if err != nil {
		return ipc.Fail(err)
	}

	switch msg.Cmd {
	case ipc.CmdStatus:
		out := make([]poller.Status, 0, len(picked))
		for _, s := range picked {
			out = append(out, s.Status())
		}
		return ipc.OK(out)
	case ipc.CmdPoll:
		names := make([]string, 0, len(picked))
		for _, s := range picked {
			s.Trigger()
			names = append(names, s.Name())
		}
		return ipc.OK(names)
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return ipc.Fail(fmt.Errorf("unknown command %q", msg.Cmd))
	}
}

// hubHandler serves TO:POLL:<source|ALL>:FROM and TO:STATUS:<source>:FROM.
func (c *control) hubHandler(out transmitter) func(*protocol.Message) {
	return func(msg *protocol.Message) {
		if msg.Verb == "OK" || msg.Verb == "ERR" {
			return
		}

		name := msg.Noun
		if strings.EqualFold(name, protocol.Broadcast) {
			name = ""
		}

		picked, err := c.pick(name)
		if err != nil {
			out.Transmit(msg.Nack("UNKNOWN_SOURCE", msg.Noun))
			return
		}

		var reply *protocol.Message
		switch msg.Verb {
		case "POLL":
			for _, s := range picked {
				s.Trigger()
			}
			reply = msg.Ack("POLL", msg.Noun)
		case "STATUS":
			args := make([]string, 0, len(picked))
			for _, s := range picked {
				args = append(args, s.Status().State.String())
			}
			reply = msg.Ack("STATUS", args...)
		default:
			reply = msg.Nack("UNKNOWN_VERB", msg.Verb)
		}

		if err := out.Transmit(reply); err != nil {
			log.Warn("Failed to reply on hub", "to", reply.To, "err", err)
		}
	}
}
