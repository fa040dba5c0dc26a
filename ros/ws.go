package ros

import (
	"crypto/tls"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a websocket connection carrying binary messages to the
// net.Conn the sentence codec expects. Message boundaries are not
// significant; sentences are reassembled from the byte stream.
//
// A pump goroutine owns the gorilla read side and hands message payloads
// over a channel. Read deadlines are enforced on the channel receive, never
// on the websocket itself: gorilla caches the first read error on the
// connection, so an expired deadline inside NextReader would poison every
// later read. Keeping the deadline out of the gorilla path preserves the
// retryable zero-byte timeout the engine relies on.
type wsConn struct {
	ws        *websocket.Conn
	incoming  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the reading goroutine.
	buffer   []byte
	deadline time.Time

	// Written by the pump before it closes incoming, read after.
	pumpErr error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	conn := &wsConn{
		ws:       ws,
		incoming: make(chan []byte),
		done:     make(chan struct{}),
	}
	go conn.pump()
	return conn
}

func dialWebsocket(deviceURL *url.URL, tlsConfig *tls.Config, timeout time.Duration) (net.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  tlsConfig,
	}

	// Credentials travel inside the protocol, never in the websocket URL.
	target := *deviceURL
	target.User = nil

	ws, response, err := dialer.Dial(target.String(), nil)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}

func (conn *wsConn) pump() {
	defer close(conn.incoming)
	for {
		messageType, reader, err := conn.ws.NextReader()
		if err != nil {
			conn.pumpErr = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		data, err := io.ReadAll(reader)
		if len(data) > 0 {
			select {
			case conn.incoming <- data:
			case <-conn.done:
				return
			}
		}
		if err != nil {
			conn.pumpErr = err
			return
		}
	}
}

func (conn *wsConn) Read(buffer []byte) (int, error) {
	if len(conn.buffer) == 0 {
		data, err := conn.waitForMessage()
		if err != nil {
			return 0, err
		}
		conn.buffer = data
	}
	count := copy(buffer, conn.buffer)
	conn.buffer = conn.buffer[count:]
	return count, nil
}

func (conn *wsConn) waitForMessage() ([]byte, error) {
	var expiry <-chan time.Time
	if !conn.deadline.IsZero() {
		remaining := time.Until(conn.deadline)
		if remaining <= 0 {
			return nil, wsTimeoutError{}
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		expiry = timer.C
	}

	select {
	case data, open := <-conn.incoming:
		if !open {
			if conn.pumpErr != nil {
				return nil, conn.pumpErr
			}
			return nil, io.EOF
		}
		return data, nil
	case <-expiry:
		return nil, wsTimeoutError{}
	}
}

func (conn *wsConn) Write(buffer []byte) (int, error) {
	if err := conn.ws.WriteMessage(websocket.BinaryMessage, buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (conn *wsConn) Close() error {
	conn.closeOnce.Do(func() { close(conn.done) })
	return conn.ws.Close()
}

func (conn *wsConn) LocalAddr() net.Addr  { return conn.ws.LocalAddr() }
func (conn *wsConn) RemoteAddr() net.Addr { return conn.ws.RemoteAddr() }

func (conn *wsConn) SetDeadline(deadline time.Time) error {
	conn.deadline = deadline
	return conn.ws.SetWriteDeadline(deadline)
}

func (conn *wsConn) SetReadDeadline(deadline time.Time) error {
	conn.deadline = deadline
	return nil
}

func (conn *wsConn) SetWriteDeadline(deadline time.Time) error {
	return conn.ws.SetWriteDeadline(deadline)
}

// wsTimeoutError reports an expired read deadline on the websocket bridge.
type wsTimeoutError struct{}

func (wsTimeoutError) Error() string   { return "websocket read deadline exceeded" }
func (wsTimeoutError) Timeout() bool   { return true }
func (wsTimeoutError) Temporary() bool { return true }
