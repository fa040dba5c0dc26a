package main

import (
	"bufio"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

type serverConfig struct {
	identity       string
	users          map[string]string
	streamInterval time.Duration
	latency        time.Duration
	outDepth       int
	logConn        bool
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		identity:       "fakeros",
		streamInterval: 100 * time.Millisecond,
		outDepth:       1024,
	}
}

type server struct {
	config serverConfig
	wg     sync.WaitGroup
}

func newServer(config serverConfig) *server {
	if config.outDepth <= 0 {
		config.outDepth = 1024
	}
	if config.streamInterval <= 0 {
		config.streamInterval = 100 * time.Millisecond
	}
	return &server{config: config}
}

// serve accepts connections until the listener is closed and tracks every
// connection handler so callers can wait for a clean drain.
func (srv *server) serve(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		if srv.config.logConn {
			log.Printf("accepted %s", conn.RemoteAddr())
		}
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.serveConn(conn)
		}()
	}
}

// wait blocks until every connection handler has finished.
func (srv *server) wait() { srv.wg.Wait() }

type stream struct {
	stop    chan struct{}
	stopped chan struct{}
}

type session struct {
	config  serverConfig
	out     chan []string
	mu      sync.Mutex
	streams map[string]*stream
	wg      sync.WaitGroup
	user    string
}

func (srv *server) serveConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	sess := &session{
		config:  srv.config,
		out:     make(chan []string, srv.config.outDepth),
		streams: make(map[string]*stream),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		broken := false
		for words := range sess.out {
			if broken {
				continue
			}
			if sess.config.latency > 0 {
				time.Sleep(sess.config.latency)
			}
			if err := writeSentence(conn, words); err != nil {
				broken = true
			}
		}
	}()

	sess.readLoop(bufio.NewReader(conn))

	sess.stopAllStreams()
	sess.wg.Wait()
	close(sess.out)
	<-writerDone
	if srv.config.logConn {
		log.Printf("closed %s", conn.RemoteAddr())
	}
}

func (sess *session) send(words ...string) { sess.out <- words }

func (sess *session) readLoop(reader *bufio.Reader) {
	authenticated := false
	var challenge string

	for {
		words, err := readSentence(reader)
		if err != nil {
			return
		}
		if len(words) == 0 {
			continue
		}
		req, err := parseRequest(words)
		if err != nil {
			sess.send("!fatal", "protocol error")
			return
		}

		if !authenticated {
			var ok bool
			ok, challenge = sess.handleLogin(req, challenge)
			if ok && challenge == "" {
				authenticated = true
			}
			continue
		}

		switch req.command {
		case "/quit":
			sess.send("!fatal", "session terminated")
			return
		case "/cancel":
			sess.handleCancel(req)
		case "/system/identity/print":
			sess.send("!re", "=name="+sess.config.identity, ".tag="+req.tag)
			sess.send("!done", ".tag="+req.tag)
		case "/system/resource/print":
			sess.send("!re", "=uptime=1d2h3m4s", "=cpu-load=7", "=version=7.1-fake", ".tag="+req.tag)
			sess.send("!done", ".tag="+req.tag)
		case "/interface/monitor-traffic":
			sess.startStream(req.tag)
		default:
			sess.send("!trap", "=message=no such command", ".tag="+req.tag)
			sess.send("!done", ".tag="+req.tag)
		}
	}
}

// handleLogin drives the two-round challenge exchange. It returns whether
// the round succeeded and the challenge still outstanding ("" once the
// handshake is complete).
func (sess *session) handleLogin(req request, challenge string) (bool, string) {
	if req.command != "/login" {
		sess.send("!trap", "=message=not logged in", ".tag="+req.tag)
		sess.send("!done", ".tag="+req.tag)
		return false, challenge
	}

	if challenge == "" && len(req.attrs) == 0 {
		challenge = newChallenge()
		sess.send("!done", "=ret="+challenge)
		return true, challenge
	}

	name := req.attrs["name"]
	response := req.attrs["response"]
	if challenge == "" || !sess.credentialsValid(name, response, challenge) {
		sess.send("!trap", "=message=cannot log in")
		sess.send("!done")
		return false, ""
	}
	sess.user = name
	sess.send("!done")
	return true, ""
}

func (sess *session) credentialsValid(name, response, challenge string) bool {
	if len(sess.config.users) == 0 {
		return true
	}
	password, known := sess.config.users[name]
	if !known {
		return false
	}
	return response == expectedResponse(password, challenge)
}

func expectedResponse(password, challengeHex string) string {
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		return ""
	}
	digest := md5.New()
	digest.Write([]byte{0})
	digest.Write([]byte(password))
	digest.Write(challenge)
	return "00" + hex.EncodeToString(digest.Sum(nil))
}

func newChallenge() string {
	raw := make([]byte, 16)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}

func (sess *session) startStream(tag string) {
	active := &stream{
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	sess.mu.Lock()
	sess.streams[tag] = active
	sess.mu.Unlock()

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		defer close(active.stopped)
		ticker := time.NewTicker(sess.config.streamInterval)
		defer ticker.Stop()
		sequence := 0
		for {
			select {
			case <-active.stop:
				return
			case <-ticker.C:
				sequence++
				sess.send("!re", "=rx-bits-per-second="+strconv.Itoa(sequence*1000), ".tag="+tag)
			}
		}
	}()
}

func (sess *session) handleCancel(req request) {
	target := req.attrs["tag"]
	sess.mu.Lock()
	active, found := sess.streams[target]
	if found {
		delete(sess.streams, target)
	}
	sess.mu.Unlock()

	if found {
		// Join the emitter first so no row lands after the trap.
		close(active.stop)
		<-active.stopped
		sess.send("!trap", "=category=2", "=message=interrupted", ".tag="+target)
		sess.send("!done", ".tag="+target)
	}
	sess.send("!done", ".tag="+req.tag)
}

func (sess *session) stopAllStreams() {
	sess.mu.Lock()
	for tag, active := range sess.streams {
		close(active.stop)
		delete(sess.streams, tag)
	}
	sess.mu.Unlock()
}
