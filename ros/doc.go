// Package ros implements a client for the RouterOS-style device management
// API: a length-prefixed, sentence-based request/reply protocol over TCP
// with tag-multiplexed commands, streaming replies, cooperative
// cancellation, and a challenge-response login.
//
// The primary lifecycle is:
//   - construct a Client with NewClient
//   - Connect, which dials and runs the login handshake
//   - SendRequest for each command; multiple requests may be in flight
//   - drive delivery with WaitForReply, WaitAll, or GetReply
//   - Close when finished, optionally after the Shutdown handshake
//
// The client has no background reader. Sentences are read, attributed by
// tag, and delivered to request handlers only while some caller is blocked
// inside a wait primitive, in strict network arrival order. Because of that
// single-reader model a Client is not safe for concurrent use; callers
// sharing one across goroutines must serialize access themselves.
//
// Errors are reported as typed values created with NewError; HasErrorCode
// distinguishes connection, protocol, timeout, and device-fatal failures.
// Per-read timeouts are retryable; malformed framing is terminal for the
// connection and requires a reconnect.
package ros
