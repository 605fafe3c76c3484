package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

type WebSocket struct {
	url    string
	reconn time.Duration

	mu   sync.Mutex
	conn *ws.Conn
}

var errNotConnected = errors.New("websocket not connected")

// NewWebSocket only checks the url. The connection is dialed by TryReconn,
// so a hub that is down at boot does not stop the caller.
func NewWebSocket(rawURL string, reconn time.Duration) (*WebSocket, error) {
	log.Debug("init websocket protocol", "url", rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("hub url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("hub url %q: scheme must be ws or wss", rawURL)
	}

	if reconn <= 0 {
		reconn = 5 * time.Second
	}
	return &WebSocket{url: rawURL, reconn: reconn}, nil
}

func (web *WebSocket) connected() bool {
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.conn != nil
}

func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	if web.conn == nil {
		return errNotConnected
	}
	log.Debug("Write ws", "msg", string(payload))
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type WsIncomeKind uint

const (
	CONN_CLOSE WsIncomeKind = iota
	READ_FAILURE
	READ_OK
)

type Income struct {
	kind WsIncomeKind
	msg  []byte
	err  error
}

func (web *WebSocket) Read() Income {
	web.mu.Lock()
	conn := web.conn
	web.mu.Unlock()

	if conn == nil {
		return Income{kind: CONN_CLOSE, err: errNotConnected}
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		if WsIsClosed(err) {
			return Income{kind: CONN_CLOSE, err: err}
		}
		return Income{kind: READ_FAILURE, err: err}
	}

	log.Debug("Read ws", "msg", string(msg))
	return Income{kind: READ_OK, msg: msg}
}

// TryReconn redials until it succeeds or ctx is cancelled.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, web.url, nil)
		if err == nil && ctx.Err() != nil {
			conn.Close()
			return ctx.Err()
		}
		if err == nil {
			web.mu.Lock()
			if web.conn != nil {
				web.conn.Close()
			}
			web.conn = conn
			web.mu.Unlock()
			return nil
		}
		log.Debug("Hub dial failed", "url", web.url, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.reconn):
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.conn == nil {
		return nil
	}
	err := web.conn.Close()
	web.conn = nil
	return err
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure) || ws.IsUnexpectedCloseError(err)
}
