package ros

import (
	"crypto/tls"
	"time"

	"github.com/rs/zerolog"
)

// RunConfig adjusts Run behavior. Zero fields keep the client defaults.
type RunConfig struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	TLSConfig      *tls.Config
	Logger         zerolog.Logger
}

// Run opens a connection to the device URI, issues every command, waits for
// all replies, performs the shutdown handshake, and closes. Each command is
// a slice whose first element is the command path and whose remaining
// elements are argument words; the returned reply sequences are positionally
// aligned with the commands.
//
// Run is unsafe for commands whose reply stream never reaches Done without
// further interaction (streaming fetches); those need a long-lived Client
// and cooperative Cancel.
func Run(uri string, commands [][]string, optionalConfig ...RunConfig) ([][]*Sentence, error) {
	client, err := NewClient(uri)
	if err != nil {
		return nil, err
	}
	if len(optionalConfig) > 0 {
		config := optionalConfig[0]
		if config.ConnectTimeout > 0 {
			client.SetConnectTimeout(config.ConnectTimeout)
		}
		if config.CommandTimeout > 0 {
			client.SetCommandTimeout(config.CommandTimeout)
		}
		if config.TLSConfig != nil {
			client.SetTLSConfig(config.TLSConfig)
		}
		client.SetLogger(config.Logger)
	}

	if err := client.Connect(); err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Close()
	}()

	requests := make([]*Request, 0, len(commands))
	for _, command := range commands {
		if len(command) == 0 {
			return nil, NewError(CommandError, "empty command")
		}
		request, err := client.SendRequest(true, command[0], command[1:], nil)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	if err := client.WaitAll(); err != nil {
		return nil, err
	}
	if err := client.Shutdown(); err != nil {
		return nil, err
	}

	replies := make([][]*Sentence, len(requests))
	for index, request := range requests {
		replies[index] = request.Replies()
	}
	return replies, nil
}
