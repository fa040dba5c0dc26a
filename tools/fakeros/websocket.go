package main

import (
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Websocket bridge: the API byte stream is carried in binary messages, one
// session per upgraded connection, handled by the same session code as TCP.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (srv *server) websocketHandler() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ws, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			log.Printf("websocket upgrade: %v", err)
			return
		}
		srv.wg.Add(1)
		defer srv.wg.Done()
		srv.serveConn(&wsBridgeConn{ws: ws})
	})
}

// wsBridgeConn adapts an upgraded websocket to the net.Conn the session
// handler reads and writes.
type wsBridgeConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (conn *wsBridgeConn) Read(buffer []byte) (int, error) {
	for {
		if conn.reader == nil {
			messageType, reader, err := conn.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			conn.reader = reader
		}
		count, err := conn.reader.Read(buffer)
		if err == io.EOF {
			conn.reader = nil
			if count == 0 {
				continue
			}
			return count, nil
		}
		return count, err
	}
}

func (conn *wsBridgeConn) Write(buffer []byte) (int, error) {
	if err := conn.ws.WriteMessage(websocket.BinaryMessage, buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (conn *wsBridgeConn) Close() error { return conn.ws.Close() }

func (conn *wsBridgeConn) LocalAddr() net.Addr  { return conn.ws.LocalAddr() }
func (conn *wsBridgeConn) RemoteAddr() net.Addr { return conn.ws.RemoteAddr() }

func (conn *wsBridgeConn) SetDeadline(deadline time.Time) error {
	if err := conn.ws.SetReadDeadline(deadline); err != nil {
		return err
	}
	return conn.ws.SetWriteDeadline(deadline)
}

func (conn *wsBridgeConn) SetReadDeadline(deadline time.Time) error {
	return conn.ws.SetReadDeadline(deadline)
}

func (conn *wsBridgeConn) SetWriteDeadline(deadline time.Time) error {
	return conn.ws.SetWriteDeadline(deadline)
}
