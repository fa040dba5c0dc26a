package ros

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebsocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ws, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		peer := newTestPeer(t, newWSConn(ws))
		defer func() {
			_ = peer.conn.Close()
		}()

		peer.serveLogin()

		words := peer.read()
		if len(words) != 2 || words[0] != "/system/identity/print" {
			t.Errorf("unexpected request over websocket: %v", words)
			return
		}
		tag := strings.TrimPrefix(words[1], tagPrefix)
		peer.write(markerRow, "=name=MyRouter", tagPrefix+tag)
		peer.write(markerDone, tagPrefix+tag)
	}))
	defer server.Close()

	uri := "ws://admin:secret@" + strings.TrimPrefix(server.URL, "http://")
	client, err := NewClient(uri)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("connect over websocket: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	request, err := client.SendRequest(false, "/system/identity/print", nil, nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := client.WaitAll(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	replies := request.Replies()
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if name, _ := replies[0].Attribute("name"); name != "MyRouter" {
		t.Fatalf("row name attribute: got %q", name)
	}
}

// A timeout with no bytes consumed must stay retryable on the websocket
// transport: the reply the device sends after the first expiry has to reach
// the next wait call instead of a replayed stale timeout.
func TestWebsocketTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseServer := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(releaseServer)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ws, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		peer := newTestPeer(t, newWSConn(ws))
		defer func() {
			_ = peer.conn.Close()
		}()

		peer.serveLogin()

		words := peer.read()
		if len(words) != 2 || words[0] != "/system/identity/print" {
			t.Errorf("unexpected request over websocket: %v", words)
			return
		}
		tag := strings.TrimPrefix(words[1], tagPrefix)

		// Stay silent through the client's first wait, then answer.
		<-release
		peer.write(markerDone, tagPrefix+tag)
	}))
	defer server.Close()

	uri := "ws://admin:secret@" + strings.TrimPrefix(server.URL, "http://")
	client, err := NewClient(uri)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("connect over websocket: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	request, err := client.SendRequest(false, "/system/identity/print", nil, nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	client.SetCommandTimeout(150 * time.Millisecond)
	if _, err := client.WaitForReply(); !HasErrorCode(err, TimeoutError) {
		t.Fatalf("want TimeoutError from the silent device, got %v", err)
	}
	if !client.Connected() {
		t.Fatalf("a zero-byte timeout must leave the connection usable")
	}

	releaseServer()
	client.SetCommandTimeout(2 * time.Second)
	if _, err := client.WaitForReply(); err != nil {
		t.Fatalf("retry after timeout must dispatch the pending reply, got %v", err)
	}
	if !request.Done() {
		t.Fatalf("request should be done after the retried wait")
	}
}
