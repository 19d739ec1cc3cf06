package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"mux/internal/config"
	"mux/internal/ipc"
)

// commandContext carries the persistent flags and the lazily loaded settings
// shared by every subcommand.
type commandContext struct {
	socketOverride string
	configPath     string
	json           bool

	loadConfig func() (*config.Config, error)
}

func newCommandContext() *commandContext {
	c := &commandContext{}
	c.loadConfig = sync.OnceValues(func() (*config.Config, error) {
		cfg, _, _, err := config.Load(c.configFlag())
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return cfg, nil
	})
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.loadConfig()
}

// configValue returns the loaded settings, or nil when they failed to load.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.loadConfig()
	return cfg
}

func (c *commandContext) configFlag() string {
	return strings.TrimSpace(c.configPath)
}

func (c *commandContext) socketFlag() string {
	return strings.TrimSpace(c.socketOverride)
}

func (c *commandContext) jsonOutput() bool {
	return c.json
}

// socketPath resolves the control socket: --socket, then [paths].socket_path,
// then the default log directory.
func (c *commandContext) socketPath() string {
	if socket := c.socketFlag(); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil && cfg.Paths.SocketPath != "" {
		return cfg.Paths.SocketPath
	}
	logDir, err := config.ExpandPath("~/.local/share/mux/logs")
	if err != nil {
		return filepath.Join(os.TempDir(), "mux.sock")
	}
	return filepath.Join(logDir, "mux.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(err error, socket string) error {
	if errors.Is(err, syscall.ENOENT) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("muxd is not running (no socket at %s); start it with `mux start`", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("muxd refused the connection on %s; it may have crashed, try `mux restart`", socket)
	}
	return fmt.Errorf("connect to muxd: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
