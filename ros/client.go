package ros

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Connection lifecycle states.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateClosed
)

func (state State) String() string {
	switch state {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Defaults for dialing and per-read timeouts.
const (
	DefaultPort    = 8728
	DefaultTLSPort = 8729

	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
)

// Client manages a single device connection, the tag registry, and the
// dispatch loop. Exactly one execution context may use a Client at a time:
// there is no background reader, progress happens only inside a wait
// primitive, and no internal locking is provided. Callers sharing a Client
// across goroutines must impose external mutual exclusion.
type Client struct {
	url      *url.URL
	username string
	password string

	connectTimeout time.Duration
	commandTimeout time.Duration
	tlsConfig      *tls.Config
	logger         zerolog.Logger

	state     State
	conn      net.Conn
	reader    *sentenceReader
	nextTag   uint64
	requests  map[string]*Request
	tagOrder  []string
	fatalSeen bool
}

// NewClient prepares a client for the given device URI. Supported schemes
// are api (cleartext TCP, the default), apis (TLS), and ws/wss (websocket
// bridge). Credentials come from the URI userinfo.
func NewClient(uri string) (*Client, error) {
	parsed, err := parseDeviceURI(uri)
	if err != nil {
		return nil, err
	}

	client := &Client{
		url:            parsed,
		connectTimeout: DefaultConnectTimeout,
		commandTimeout: DefaultCommandTimeout,
		logger:         zerolog.Nop(),
		requests:       make(map[string]*Request),
	}
	if parsed.User != nil {
		client.username = parsed.User.Username()
		client.password, _ = parsed.User.Password()
	}
	return client, nil
}

func parseDeviceURI(uri string) (*url.URL, error) {
	if !strings.Contains(uri, "://") {
		uri = "api://" + uri
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, NewError(ConnectionError, fmt.Sprintf("invalid device URI: %v", err))
	}

	switch parsed.Scheme {
	case "api":
		if parsed.Port() == "" {
			parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(DefaultPort))
		}
	case "apis":
		if parsed.Port() == "" {
			parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(DefaultTLSPort))
		}
	case "ws", "wss":
	default:
		return nil, NewError(ConnectionError, "unsupported scheme "+parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, NewError(ConnectionError, "device URI has no host")
	}
	return parsed, nil
}

// SetConnectTimeout sets the dial-phase timeout on the receiver.
func (client *Client) SetConnectTimeout(timeout time.Duration) *Client {
	client.connectTimeout = timeout
	return client
}

// SetCommandTimeout sets the per-read timeout on the receiver. Zero disables
// read deadlines.
func (client *Client) SetCommandTimeout(timeout time.Duration) *Client {
	client.commandTimeout = timeout
	return client
}

// SetTLSConfig sets the TLS configuration used by apis and wss schemes.
func (client *Client) SetTLSConfig(config *tls.Config) *Client {
	client.tlsConfig = config
	return client
}

// SetLogger sets the diagnostic logger on the receiver. The default logger
// discards everything.
func (client *Client) SetLogger(logger zerolog.Logger) *Client {
	client.logger = logger
	return client
}

// ConnectTimeout returns the dial-phase timeout.
func (client *Client) ConnectTimeout() time.Duration { return client.connectTimeout }

// CommandTimeout returns the per-read timeout.
func (client *Client) CommandTimeout() time.Duration { return client.commandTimeout }

// State returns the connection lifecycle state.
func (client *Client) State() State { return client.state }

// PendingRequests returns the number of requests not yet Done.
func (client *Client) PendingRequests() int { return len(client.requests) }

// Connected reports whether the stream is open, the client has not been
// closed, and no session-ending Fatal has been observed.
func (client *Client) Connected() bool {
	return client.conn != nil && client.state != StateClosed && !client.fatalSeen
}

// Connect dials the device and runs the login handshake. On any failure the
// client returns to the disconnected state.
func (client *Client) Connect() error {
	if client.state == StateClosed {
		return NewError(DisconnectedError, "client is closed")
	}
	if client.state != StateDisconnected {
		return NewError(AlreadyConnectedError)
	}

	client.state = StateConnecting
	conn, err := client.dial()
	if err != nil {
		client.state = StateDisconnected
		return NewError(ConnectionRefusedError, err)
	}
	client.conn = conn
	client.reader = newSentenceReader(conn)
	client.fatalSeen = false
	client.logger.Debug().Str("device", client.url.Host).Str("scheme", client.url.Scheme).Msg("connected")

	return client.authenticate()
}

func (client *Client) dial() (net.Conn, error) {
	switch client.url.Scheme {
	case "apis":
		config := client.tlsConfig
		if config == nil {
			config = &tls.Config{InsecureSkipVerify: true}
		}
		dialer := &net.Dialer{Timeout: client.connectTimeout}
		return tls.DialWithDialer(dialer, "tcp", client.url.Host, config)
	case "ws", "wss":
		return dialWebsocket(client.url, client.tlsConfig, client.connectTimeout)
	default:
		dialer := &net.Dialer{Timeout: client.connectTimeout}
		return dialer.Dial("tcp", client.url.Host)
	}
}

// Login re-runs the authentication handshake on an existing client, dialing
// first if the previous session ended with a disconnect or a session Fatal.
func (client *Client) Login() error {
	if client.state == StateClosed {
		return NewError(DisconnectedError, "client is closed")
	}
	if client.conn == nil || client.fatalSeen {
		client.teardown()
		client.state = StateDisconnected
		return client.Connect()
	}
	return client.authenticate()
}

// SendRequest allocates a tag, writes one command sentence, and registers a
// pending request. It never blocks waiting for replies; the synchronous flag
// is advisory to callers layered on top. The handler may be nil.
func (client *Client) SendRequest(synchronous bool, command string, arguments []string, handler ReplyHandler) (*Request, error) {
	if client.state != StateReady {
		return nil, NewError(DisconnectedError, "client is "+client.state.String()+", not ready")
	}
	if !strings.HasPrefix(command, "/") {
		return nil, NewError(CommandError, "command path must begin with '/'")
	}

	tag := strconv.FormatUint(client.nextTag, 10)
	client.nextTag++

	request := &Request{
		tag:         tag,
		command:     command,
		arguments:   append([]string(nil), arguments...),
		synchronous: synchronous,
		handler:     handler,
	}

	words := make([]string, 0, len(arguments)+2)
	words = append(words, command)
	words = append(words, arguments...)
	words = append(words, tagPrefix+tag)
	if err := client.writeSentence(words); err != nil {
		return nil, err
	}

	client.requests[tag] = request
	client.tagOrder = append(client.tagOrder, tag)
	client.logger.Debug().Str("tag", tag).Str("command", command).Msg("request sent")
	return request, nil
}

// ReceiveAndDispatch performs exactly one sentence read bounded by the
// command timeout, attributes the sentence to its request, and invokes that
// request's handler. It reports whether any request transitioned to Done.
//
// A timeout with no bytes received leaves the registry and stream intact; a
// later call will succeed normally. A timeout mid-sentence desynchronizes
// the stream and is a ProtocolError.
func (client *Client) ReceiveAndDispatch() (bool, error) {
	if client.conn == nil {
		return false, NewError(DisconnectedError, "no active connection")
	}

	words, err := client.readSentence()
	if err != nil {
		return false, err
	}
	if len(words) == 0 {
		// Empty sentences are valid framing but carry nothing to dispatch.
		return false, nil
	}

	sentence, err := parseSentence(words)
	if err != nil {
		client.teardown()
		return false, err
	}
	return client.dispatch(sentence)
}

// WaitForReply performs one dispatch step and propagates its result.
func (client *Client) WaitForReply() (bool, error) {
	return client.ReceiveAndDispatch()
}

// WaitAll dispatches until every currently registered request is Done.
// Worst-case latency is one command timeout per undelivered sentence, not
// one aggregate deadline.
func (client *Client) WaitAll() error {
	for len(client.requests) > 0 {
		if _, err := client.ReceiveAndDispatch(); err != nil {
			return err
		}
	}
	return nil
}

// GetReply sends a single no-argument command and dispatches until that
// request is Done, returning its accumulated sentences.
func (client *Client) GetReply(command string) ([]*Sentence, error) {
	request, err := client.SendRequest(true, command, nil, nil)
	if err != nil {
		return nil, err
	}
	for !request.Done() {
		if _, err := client.ReceiveAndDispatch(); err != nil {
			if request.Done() {
				break
			}
			return nil, err
		}
	}
	return request.Replies(), nil
}

// Cancel asks the device to stop the target request. Cancellation is
// cooperative: the device answers the original tag with a Trap and then
// Done, so the caller must keep dispatching until the target drains.
func (client *Client) Cancel(request *Request) (*Request, error) {
	if request == nil {
		return nil, NewError(CommandError, "no request to cancel")
	}
	if request.Done() {
		return nil, NewError(CommandError, "request "+request.tag+" is already done")
	}
	return client.SendRequest(false, "/cancel", []string{"=tag=" + request.tag}, nil)
}

// Shutdown performs the session shutdown handshake. The device answers /quit
// with exactly one session Fatal; any other reply shape breaks the contract.
func (client *Client) Shutdown() error {
	replies, err := client.GetReply("/quit")
	if err != nil {
		return err
	}
	if len(replies) != 1 || replies[0].Kind() != KindFatal {
		return NewError(ProtocolError, "device broke the shutdown handshake contract")
	}
	return nil
}

// Close closes the underlying stream and forbids further requests. It is
// idempotent.
func (client *Client) Close() error {
	if client.state == StateClosed {
		return nil
	}
	client.state = StateClosed
	if client.conn == nil {
		return nil
	}
	err := client.conn.Close()
	client.conn = nil
	client.reader = nil
	if err != nil {
		return NewError(ConnectionError, fmt.Sprintf("close failed: %v", err))
	}
	return nil
}

func (client *Client) writeSentence(words []string) error {
	if client.conn == nil {
		return NewError(DisconnectedError, "no active connection")
	}
	if _, err := client.conn.Write(encodeSentence(words)); err != nil {
		client.teardown()
		return NewError(ConnectionError, fmt.Sprintf("write failed: %v", err))
	}
	return nil
}

func (client *Client) readSentence() ([]string, error) {
	if client.commandTimeout > 0 {
		if err := client.conn.SetReadDeadline(time.Now().Add(client.commandTimeout)); err != nil {
			return nil, NewError(ConnectionError, fmt.Sprintf("set read deadline: %v", err))
		}
	} else if err := client.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, NewError(ConnectionError, fmt.Sprintf("clear read deadline: %v", err))
	}

	words, err := client.reader.readSentence()
	if err == nil {
		return words, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if client.reader.consumed == 0 {
			return nil, NewError(TimeoutError, fmt.Sprintf("no sentence within %v", client.commandTimeout))
		}
		client.teardown()
		return nil, NewError(ProtocolError, "read timed out mid-sentence, stream is desynchronized")
	}

	consumed := client.reader.consumed
	client.teardown()
	var typed *Error
	if errors.As(err, &typed) {
		return nil, err
	}
	if errors.Is(err, io.EOF) && consumed == 0 {
		return nil, NewError(ConnectionError, "connection closed by device")
	}
	return nil, NewError(ProtocolError, fmt.Sprintf("truncated sentence: %v", err))
}

func (client *Client) dispatch(sentence *Sentence) (bool, error) {
	tag, hasTag := sentence.Tag()
	if hasTag {
		request, exists := client.requests[tag]
		if exists {
			return client.deliver(request, sentence)
		}
	}

	if sentence.Kind() == KindFatal {
		return client.broadcastFatal(sentence)
	}
	if hasTag {
		return false, NewError(ProtocolError, "sentence for unknown tag "+tag)
	}
	return false, NewError(ProtocolError, "untagged "+sentence.Kind().String()+" sentence")
}

func (client *Client) deliver(request *Request, sentence *Sentence) (bool, error) {
	request.appendReply(sentence)

	var handlerErr error
	if request.handler != nil {
		if err := request.handler(request, sentence); err != nil {
			handlerErr = NewError(HandlerError, err)
		}
	}

	completed := sentence.Kind() == KindDone || sentence.Kind() == KindFatal
	if completed {
		if sentence.Kind() == KindFatal {
			client.sessionEnded()
		}
		request.markDone()
		client.removeRequest(request.tag)
	}
	client.logger.Debug().
		Str("tag", request.tag).
		Stringer("kind", sentence.Kind()).
		Bool("done", completed).
		Msg("sentence dispatched")
	return completed, handlerErr
}

// broadcastFatal treats a Fatal with no matching request as a session-wide
// shutdown notice: every still-pending request receives it, in start order,
// and transitions to Done. This also answers an in-flight /quit handshake.
func (client *Client) broadcastFatal(sentence *Sentence) (bool, error) {
	client.sessionEnded()
	client.logger.Warn().Str("message", sentence.DeviceMessage()).Msg("session fatal received")

	anyDone := false
	var firstErr error
	for _, tag := range append([]string(nil), client.tagOrder...) {
		request, exists := client.requests[tag]
		if !exists {
			continue
		}
		request.appendReply(sentence)
		if request.handler != nil {
			if err := request.handler(request, sentence); err != nil && firstErr == nil {
				firstErr = NewError(HandlerError, err)
			}
		}
		request.markDone()
		client.removeRequest(tag)
		anyDone = true
	}
	return anyDone, firstErr
}

// sessionEnded records a device-issued Fatal: no further requests may be
// sent, so the state leaves Ready in step with the Connected predicate. The
// socket stays open until Close so remaining sentences can still drain.
func (client *Client) sessionEnded() {
	client.fatalSeen = true
	if client.state == StateReady {
		client.state = StateDisconnected
	}
}

func (client *Client) removeRequest(tag string) {
	delete(client.requests, tag)
	for index, candidate := range client.tagOrder {
		if candidate == tag {
			client.tagOrder = append(client.tagOrder[:index], client.tagOrder[index+1:]...)
			break
		}
	}
}

// teardown drops an unusable connection. The registry is left alone so
// callers can still inspect accumulated replies.
func (client *Client) teardown() {
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.reader = nil
	if client.state != StateClosed {
		client.state = StateDisconnected
	}
}
