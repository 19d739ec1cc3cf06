package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mux/internal/daemonctl"
	"mux/internal/deps"
	"mux/internal/mixer"
)

const daemonBinary = "muxd"

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startVerbose bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the mux daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startVerbose),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	startCmd.Flags().BoolVar(&startVerbose, "verbose", false, "Launch the daemon with DEBUG logging")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the mux daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, routing, and channel status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	var restartVerbose bool
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the mux daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartVerbose),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	restartCmd.Flags().BoolVar(&restartVerbose, "verbose", false, "Launch the daemon with DEBUG logging")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(out io.Writer, snapshot *daemonctl.Snapshot, colorize bool) {
	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range snapshot.SystemChecks {
		fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(snapshot.Dependencies, snapshot.DependencySummary, colorize) {
		fmt.Fprintln(out, line)
	}

	if !snapshot.Running {
		return
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Routing", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range routingLines(snapshot, colorize) {
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Channels", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprint(out, renderTable(
		[]string{"Channel", "Volume", "Muted", "Stream", "Stream Muted", "Apps"},
		channelRows(snapshot.Channels),
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintln(out)
}

func routingLines(snapshot *daemonctl.Snapshot, colorize bool) []string {
	intent := snapshot.Intent
	lines := []string{
		renderStatusLine("Output", selectionKind(intent.Output), orNone(intent.Output), colorize),
		renderStatusLine("Input", statusInfo, orNone(intent.Input), colorize),
		renderStatusLine("Streamer mode", statusInfo, yesNo(intent.StreamerMode), colorize),
		renderStatusLine("Links", statusInfo, strconv.Itoa(snapshot.LinksResolved), colorize),
		renderStatusLine("Hotkeys", statusInfo, fmt.Sprintf("%s (%d active)", snapshot.Hotkeys.State, len(snapshot.Hotkeys.Active)), colorize),
	}
	if pass := snapshot.LastPass; pass != nil {
		kind := statusOK
		detail := fmt.Sprintf("%s: +%d/-%d links in %s", pass.Reason, pass.LinksCreated, pass.LinksRemoved, pass.Duration().Round(time.Millisecond))
		if pass.OutputMissing {
			kind = statusWarn
			detail += " (output missing)"
		} else if pass.Failures > 0 {
			kind = statusWarn
			detail += fmt.Sprintf(" (%d failures)", pass.Failures)
		}
		lines = append(lines, renderStatusLine("Last pass", kind, detail, colorize))
	}
	return lines
}

func channelRows(channels []mixer.ChannelState) [][]string {
	rows := make([][]string, 0, len(channels))
	for _, ch := range channels {
		apps := make([]string, 0, len(ch.Apps))
		for _, app := range ch.Apps {
			apps = append(apps, fmt.Sprintf("%s (#%s)", app.DisplayName, app.InputID))
		}
		rows = append(rows, []string{
			string(ch.Channel),
			strconv.Itoa(ch.Volume),
			yesNo(ch.Muted),
			strconv.Itoa(ch.StreamVolume),
			yesNo(ch.StreamMuted),
			strings.Join(apps, ", "),
		})
	}
	return rows
}

func dependencyLines(statuses []deps.Status, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			if dep.Version != "" {
				message += ", " + dep.Version
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusKindFromSeverity(daemonctl.DependencySeverity(dep))
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func selectionKind(name string) statusKind {
	if strings.TrimSpace(name) == "" {
		return statusWarn
	}
	return statusOK
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "none"
	}
	return value
}

// daemonExecutable prefers a muxd installed next to this binary.
func daemonExecutable() (string, error) {
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), daemonBinary)
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(daemonBinary)
	if err != nil {
		return "", fmt.Errorf("resolve %s executable: %w", daemonBinary, err)
	}
	return path, nil
}

func daemonLaunchOptions(ctx *commandContext, verbose bool) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: ctx.socketFlag(),
		ConfigPath: ctx.configFlag(),
		Verbose:    verbose,
	}
}
