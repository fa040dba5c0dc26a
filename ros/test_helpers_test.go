package ros

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Fixed login vector used across tests: password "secret", this challenge,
// and the digest the device must receive back.
const (
	testChallengeHex  = "ffddee0123456789abcdef0011223344"
	testLoginResponse = "000a84039e75ba2e4bbddb857a1e2c029d"
)

// testPeer drives the device side of a connection from inside a test.
type testPeer struct {
	t      *testing.T
	conn   net.Conn
	reader *sentenceReader
}

func newTestPeer(t *testing.T, conn net.Conn) *testPeer {
	t.Helper()
	return &testPeer{t: t, conn: conn, reader: newSentenceReader(conn)}
}

func (peer *testPeer) read() []string {
	peer.t.Helper()
	if err := peer.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		peer.t.Errorf("peer set deadline: %v", err)
		return nil
	}
	words, err := peer.reader.readSentence()
	if err != nil {
		peer.t.Errorf("peer read sentence: %v", err)
		return nil
	}
	return words
}

func (peer *testPeer) write(words ...string) {
	peer.t.Helper()
	if _, err := peer.conn.Write(encodeSentence(words)); err != nil {
		peer.t.Errorf("peer write sentence: %v", err)
	}
}

// serveLogin answers the two-round handshake with the fixed test challenge
// and accepts any response.
func (peer *testPeer) serveLogin() {
	peer.t.Helper()
	first := peer.read()
	if len(first) != 1 || first[0] != loginPath {
		peer.t.Errorf("unexpected first login sentence: %v", first)
		return
	}
	peer.write(markerDone, "=ret="+testChallengeHex)

	second := peer.read()
	if len(second) != 3 || second[0] != loginPath {
		peer.t.Errorf("unexpected second login sentence: %v", second)
		return
	}
	peer.write(markerDone)
}

// newPipeClient returns a ready client wired to an in-memory peer. The
// handshake is skipped; the client starts in the Ready state.
func newPipeClient(t *testing.T) (*Client, *testPeer) {
	t.Helper()

	clientEnd, serverEnd := net.Pipe()
	deviceURL, err := parseDeviceURI("api://device.test")
	if err != nil {
		t.Fatalf("parse device URI: %v", err)
	}

	client := &Client{
		url:            deviceURL,
		username:       "admin",
		password:       "secret",
		connectTimeout: time.Second,
		commandTimeout: 2 * time.Second,
		logger:         zerolog.Nop(),
		state:          StateReady,
		conn:           clientEnd,
		reader:         newSentenceReader(clientEnd),
		requests:       make(map[string]*Request),
	}
	t.Cleanup(func() {
		_ = clientEnd.Close()
		_ = serverEnd.Close()
	})
	return client, newTestPeer(t, serverEnd)
}

// background runs fn in a goroutine and makes the test wait for it to
// finish, keeping the leak checker happy.
func background(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("background peer did not finish")
		}
	})
}
