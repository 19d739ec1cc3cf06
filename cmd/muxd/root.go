package main

import (
	"strings"

	"github.com/spf13/cobra"

	"mux/internal/config"
	"mux/internal/daemonrun"
)

type daemonFlags struct {
	config  string
	socket  string
	verbose bool
	cleanup bool
}

func newRootCommand() *cobra.Command {
	var flags daemonFlags
	cmd := &cobra.Command{
		Use:           "muxd",
		Short:         "Run the mux audio routing daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, runOptions(flags))
		},
	}
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&flags.socket, "socket", "", "Override the control socket path")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Log at DEBUG level")
	cmd.Flags().BoolVar(&flags.cleanup, "cleanup", false, "Remove every link on exit")
	return cmd
}

func loadConfig(flags daemonFlags) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(flags.config))
	if err != nil {
		return nil, err
	}
	if socket := strings.TrimSpace(flags.socket); socket != "" {
		expanded, err := config.ExpandPath(socket)
		if err != nil {
			return nil, err
		}
		cfg.Paths.SocketPath = expanded
	}
	return cfg, nil
}

func runOptions(flags daemonFlags) daemonrun.Options {
	opts := daemonrun.Options{Cleanup: flags.cleanup}
	if flags.verbose {
		opts.LogLevel = "debug"
	}
	return opts
}
