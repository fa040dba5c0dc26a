// rosc is an interactive shell for RouterOS-style devices. It reads command
// lines from stdin, sends each as a tagged API request, and prints the
// streamed reply rows, cancelling long-running fetches per the configured
// policy.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/rosproto/ros-client-go/ros"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rosc:", err)
		os.Exit(1)
	}
}

func run(args []string, input io.Reader, output io.Writer) error {
	flagSet := pflag.NewFlagSet("rosc", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to rosc.toml")
	address := flagSet.String("address", "", "device address (host[:port])")
	username := flagSet.String("user", "", "login name")
	password := flagSet.String("password", "", "login password")
	useTLS := flagSet.Bool("use-tls", false, "connect with TLS")
	connectTimeout := flagSet.Duration("connect-timeout", 0, "dial timeout")
	commandTimeout := flagSet.Duration("command-timeout", 0, "per-read reply timeout")
	autoCancelRows := flagSet.Int("auto-cancel-rows", 0, "cancel a streaming command after this many rows (0 disables)")
	verbose := flagSet.BoolP("verbose", "v", false, "log protocol activity")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	config := defaultConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		config = loaded
	}
	if flagSet.Changed("address") {
		config.Address = *address
	}
	if flagSet.Changed("user") {
		config.Username = *username
	}
	if flagSet.Changed("password") {
		config.Password = *password
	}
	if flagSet.Changed("use-tls") {
		config.UseTLS = *useTLS
	}
	if flagSet.Changed("connect-timeout") {
		config.ConnectTimeout = *connectTimeout
	}
	if flagSet.Changed("command-timeout") {
		config.CommandTimeout = *commandTimeout
	}
	if flagSet.Changed("auto-cancel-rows") {
		config.AutoCancelRows = *autoCancelRows
	}
	if config.Address == "" {
		return errors.New("no device address configured")
	}

	logger := initLogger(*verbose)

	client, err := ros.NewClient(deviceURI(config))
	if err != nil {
		return err
	}
	client.SetConnectTimeout(config.ConnectTimeout).
		SetCommandTimeout(config.CommandTimeout).
		SetLogger(logger)

	if err := client.Connect(); err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	logger.Info().Str("address", config.Address).Msg("connected")

	sh := &shell{
		client:         client,
		out:            output,
		logger:         logger,
		autoCancelRows: config.AutoCancelRows,
	}
	return sh.run(input)
}

func deviceURI(config shellConfig) string {
	scheme := "api"
	if config.UseTLS {
		scheme = "apis"
	}
	if config.Username == "" {
		return scheme + "://" + config.Address
	}
	return scheme + "://" + url.UserPassword(config.Username, config.Password).String() + "@" + config.Address
}

func initLogger(verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "rosc").Logger()
	if !verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}
