// Package main implements fakeros — a deterministic RouterOS-API-protocol
// responder for integration testing of custom API client implementations.
// It speaks the length-prefixed word protocol over plain TCP and optionally
// over websocket, models the two-round challenge login, and serves a small
// command table including a streaming command that drains through /cancel.
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var (
	flagAddr     = flag.String("addr", "127.0.0.1:8728", "TCP listen address")
	flagWSAddr   = flag.String("ws-addr", "", "websocket listen address (e.g. ':8080'; empty disables)")
	flagAuth     = flag.String("auth", "", "require credentials, user:pass pairs (e.g. 'admin:secret,ops:p1'); empty accepts any login")
	flagIdentity = flag.String("identity", "fakeros", "device identity reported by /system/identity/print")
	flagInterval = flag.Duration("stream-interval", 100*time.Millisecond, "row interval for streaming commands")
	flagLatency  = flag.Duration("latency", 0, "artificial per-sentence write latency")
	flagOutDepth = flag.Int("out-depth", 1024, "per-connection outbound sentence queue depth")
	flagLogConn  = flag.Bool("log-conn", true, "log connect/disconnect events")
)

func parseUsers(spec string) map[string]string {
	if spec == "" {
		return nil
	}
	users := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		name, password, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found || name == "" {
			log.Printf("fakeros: invalid auth pair: %q", pair)
			continue
		}
		users[name] = password
	}
	return users
}

func main() {
	flag.Parse()

	config := serverConfig{
		identity:       *flagIdentity,
		users:          parseUsers(*flagAuth),
		streamInterval: *flagInterval,
		latency:        *flagLatency,
		outDepth:       *flagOutDepth,
		logConn:        *flagLogConn,
	}
	srv := newServer(config)

	listener, err := net.Listen("tcp", *flagAddr)
	if err != nil {
		log.Fatalf("fakeros: listen %s failed: %v", *flagAddr, err)
	}

	var wsServer *http.Server
	if *flagWSAddr != "" {
		wsServer = &http.Server{Addr: *flagWSAddr, Handler: srv.websocketHandler()}
		go func() {
			if serveErr := wsServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				log.Fatalf("fakeros: websocket listen %s failed: %v", *flagWSAddr, serveErr)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("fakeros: received %v, shutting down", sig)
		_ = listener.Close()
		if wsServer != nil {
			_ = wsServer.Close()
		}
	}()

	log.Printf("fakeros listening on %s  (ws=%q identity=%q auth=%v stream-interval=%v latency=%v)",
		*flagAddr, *flagWSAddr, *flagIdentity, len(config.users) > 0, *flagInterval, *flagLatency)

	srv.serve(listener)
	srv.wait()
	log.Printf("fakeros: listener closed, exiting")
}
