package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mux/internal/ipc"
	"mux/internal/mixer"
)

func newHotkeyCommand(ctx *commandContext) *cobra.Command {
	hotkeyCmd := &cobra.Command{
		Use:   "hotkey",
		Short: "Manage global hotkey bindings",
	}

	bindCmd := &cobra.Command{
		Use:   "bind <channel> <action> [combo]",
		Short: "Bind a key combo to a channel action (omit combo to unbind)",
		Example: `  mux hotkey bind game up "<ctrl>+<alt>+up"
  mux hotkey bind chat stream_mute f9
  mux hotkey bind media mute`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.BindRequest{Channel: args[0], Action: args[1]}
			if len(args) == 3 {
				req.Combo = args[2]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BindHotkey(req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Binding)
				}
				b := resp.Binding
				if b.Combo == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Unbound %s %s\n", b.Channel, b.Action)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Bound %s to %s %s\n", b.Combo, b.Channel, b.Action)
				return nil
			})
		},
	}

	triggerCmd := &cobra.Command{
		Use:   "trigger <combo>",
		Short: "Fire the bindings of a key combo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerHotkey(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fired %d binding(s)\n", resp.Fired)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List hotkey bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Hotkeys()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Hotkeys)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Listener: %s\n", resp.Hotkeys.State)
				rows := bindingRows(resp.Hotkeys.Bindings, resp.Hotkeys.Active)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No hotkeys bound")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Channel", "Action", "Combo", "Active"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	hotkeyCmd.AddCommand(bindCmd, triggerCmd, listCmd)
	return hotkeyCmd
}

func bindingRows(bindings, active []mixer.HotkeyBinding) [][]string {
	isActive := make(map[mixer.HotkeyBinding]bool, len(active))
	for _, b := range active {
		isActive[b] = true
	}
	rows := make([][]string, 0, len(bindings))
	for _, b := range bindings {
		if b.Combo == "" {
			continue
		}
		rows = append(rows, []string{string(b.Channel), string(b.Action), b.Combo, yesNo(isActive[b])})
	}
	return rows
}
