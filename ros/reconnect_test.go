package ros

import (
	"net"
	"testing"
	"time"
)

func TestLoginRecoversAfterSessionFatal(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() {
		_ = listener.Close()
	}()

	background(t, func() {
		// First session: login, then terminate it from the device side.
		conn, err := listener.Accept()
		if err != nil {
			t.Errorf("first accept: %v", err)
			return
		}
		peer := newTestPeer(t, conn)
		peer.serveLogin()
		peer.read()
		peer.write(markerFatal, "router is rebooting")
		_ = conn.Close()

		// Second session: the recovery handshake.
		conn, err = listener.Accept()
		if err != nil {
			t.Errorf("second accept: %v", err)
			return
		}
		peer = newTestPeer(t, conn)
		peer.serveLogin()
		words := peer.read()
		if len(words) != 2 || words[0] != "/system/identity/print" {
			t.Errorf("unexpected post-recovery request: %v", words)
			_ = conn.Close()
			return
		}
		peer.write(markerDone, words[1])
		_ = conn.Close()
	})

	client, err := NewClient("api://admin:secret@" + listener.Addr().String())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetConnectTimeout(2 * time.Second).SetCommandTimeout(2 * time.Second)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	request, err := client.SendRequest(false, "/interface/print", nil, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := client.ReceiveAndDispatch(); err != nil {
		t.Fatalf("dispatch fatal: %v", err)
	}
	if !request.Done() || client.Connected() {
		t.Fatal("session fatal did not end the first session")
	}

	if err := client.Login(); err != nil {
		t.Fatalf("recovery login: %v", err)
	}
	if !client.Connected() {
		t.Fatal("client not connected after recovery login")
	}

	recovered, err := client.SendRequest(false, "/system/identity/print", nil, nil)
	if err != nil {
		t.Fatalf("post-recovery send: %v", err)
	}
	if err := client.WaitAll(); err != nil {
		t.Fatalf("post-recovery wait: %v", err)
	}
	if !recovered.Done() {
		t.Fatal("post-recovery request not done")
	}
}
