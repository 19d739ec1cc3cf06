package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mux/internal/ipc"
)

func newMixerCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newVolumeCommand(ctx),
		newMuteCommand(ctx),
		newMoveCommand(ctx),
		newAppsCommand(ctx),
		newModeCommand(ctx),
		newReconcileCommand(ctx),
	}
}

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "volume <channel> <value|+delta|-delta>",
		Short: "Set or adjust a channel volume",
		Example: `  mux volume game 40
  mux volume chat +5
  mux volume media --stream -- -10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, relative, err := parseVolumeArg(args[1])
			if err != nil {
				return err
			}
			req := ipc.VolumeRequest{
				Channel:  args[0],
				Track:    trackFlag(stream),
				Value:    value,
				Relative: relative,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Volume(req)
				if err != nil {
					return err
				}
				return printOutcome(cmd, ctx, resp.Outcome)
			})
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "Target the stream track instead of the user track")
	return cmd
}

func newMuteCommand(ctx *commandContext) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "mute <channel>",
		Short: "Toggle a channel's mute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ToggleMute(ipc.MuteRequest{Channel: args[0], Track: trackFlag(stream)})
				if err != nil {
					return err
				}
				return printOutcome(cmd, ctx, resp.Outcome)
			})
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "Target the stream track instead of the user track")
	return cmd
}

func newMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <input-id> <channel>",
		Short: "Route an application stream into a channel",
		Long:  "Route an application stream into a channel. Use `mux apps` to find input ids.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MoveApplication(ipc.MoveRequest{InputID: args[0], Channel: args[1]})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Outcome)
				}
				if !resp.Outcome.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "Application %s not moved (%s)\n", args[0], resp.Outcome.Skipped)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved application %s to %s\n", args[0], resp.Outcome.Channel)
				return nil
			})
		},
	}
}

func newAppsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List application streams attached to each channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status.Channels)
				}
				var rows [][]string
				for _, ch := range status.Channels {
					for _, app := range ch.Apps {
						rows = append(rows, []string{app.InputID, string(ch.Channel), app.DisplayName, app.IconHint})
					}
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No application streams attached")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Input", "Channel", "Application", "Icon"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func newModeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "mode [on|off|toggle]",
		Short:     "Show or change streamer mode",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if len(args) == 0 {
					status, err := client.Status()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Streamer mode: %s\n", onOff(status.Intent.StreamerMode))
					return nil
				}
				var req ipc.ModeRequest
				switch strings.ToLower(strings.TrimSpace(args[0])) {
				case "on":
					req.Enabled = true
				case "off":
				case "toggle":
					req.Toggle = true
				default:
					return fmt.Errorf("unknown mode %q (want on, off, or toggle)", args[0])
				}
				resp, err := client.StreamerMode(req)
				if err != nil {
					return err
				}
				return printPass(cmd, ctx, resp.Result)
			})
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild links for the current routing intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reconcile(reason)
				if err != nil {
					return err
				}
				return printPass(cmd, ctx, resp.Result)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded in the journal")
	return cmd
}

func parseVolumeArg(raw string) (int, bool, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return 0, false, errors.New("volume value is required")
	}
	relative := strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-")
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid volume %q", raw)
	}
	return value, relative, nil
}

func trackFlag(stream bool) string {
	if stream {
		return "stream"
	}
	return "user"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
