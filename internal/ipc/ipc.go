package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const SocketPath = "/tmp/vox.sock"

const (
	CmdStatus = "status"
	CmdPoll   = "poll"
)

// ControlMessage is one request from vox-ctl. Source narrows the command to a
// single poller; empty means all.
type ControlMessage struct {
	Cmd    string `json:"cmd"`
	Source string `json:"source,omitempty"`
}

type Reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func OK(v any) Reply {
	if v == nil {
		return Reply{OK: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(err)
	}
	return Reply{OK: true, Data: data}
}

func Fail(err error) Reply {
	return Reply{Error: err.Error()}
}

type Handler func(ControlMessage) Reply

// StartServer listens on socketPath until ctx is cancelled. A stale socket
// file from an earlier run is removed first.
func StartServer(ctx context.Context, socketPath string, handler Handler) error {
	if socketPath == "" {
		socketPath = SocketPath
	}
	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		os.Remove(socketPath)
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Accept failed", "err", err)
				continue
			}
			go handleConn(conn, handler)
		}
	}()

	log.Debug("Control socket listening", "path", socketPath)
	return nil
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		json.NewEncoder(conn).Encode(Fail(fmt.Errorf("decode: %w", err)))
		return
	}

	log.Debug("Control command", "cmd", msg.Cmd, "source", msg.Source)

	if err := json.NewEncoder(conn).Encode(handler(msg)); err != nil {
		log.Warn("Failed to reply", "cmd", msg.Cmd, "err", err)
	}
}

func SendCommand(socketPath string, msg ControlMessage) (Reply, error) {
	if socketPath == "" {
		socketPath = SocketPath
	}

	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
