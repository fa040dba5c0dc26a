package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rosproto/ros-client-go/ros"
)

// shellConfig is the resolved rosc runtime configuration.
type shellConfig struct {
	Address        string
	Username       string
	Password       string
	UseTLS         bool
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	AutoCancelRows int
}

func defaultConfig() shellConfig {
	return shellConfig{
		ConnectTimeout: ros.DefaultConnectTimeout,
		CommandTimeout: ros.DefaultCommandTimeout,
	}
}

// rosc.toml key mapping.
type fileConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	UseTLS         bool   `toml:"use_tls"`
	ConnectTimeout string `toml:"connect_timeout"`
	CommandTimeout string `toml:"command_timeout"`
	AutoCancelRows int    `toml:"auto_cancel_rows"`
}

// loadConfig overlays a TOML file onto the defaults. Only keys present in
// the file override.
func loadConfig(path string) (shellConfig, error) {
	config := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return shellConfig{}, fmt.Errorf("load rosc config: %w", err)
	}

	if meta.IsDefined("address") {
		config.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("username") {
		config.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("password") {
		config.Password = raw.Password
	}
	if meta.IsDefined("use_tls") {
		config.UseTLS = raw.UseTLS
	}
	if meta.IsDefined("connect_timeout") {
		timeout, err := time.ParseDuration(raw.ConnectTimeout)
		if err != nil {
			return shellConfig{}, fmt.Errorf("connect_timeout: %w", err)
		}
		config.ConnectTimeout = timeout
	}
	if meta.IsDefined("command_timeout") {
		timeout, err := time.ParseDuration(raw.CommandTimeout)
		if err != nil {
			return shellConfig{}, fmt.Errorf("command_timeout: %w", err)
		}
		config.CommandTimeout = timeout
	}
	if meta.IsDefined("auto_cancel_rows") {
		if raw.AutoCancelRows < 0 {
			return shellConfig{}, fmt.Errorf("auto_cancel_rows must not be negative")
		}
		config.AutoCancelRows = raw.AutoCancelRows
	}
	return config, nil
}
