package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mux/internal/ipc"
	"mux/internal/pulse"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List hardware outputs and inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				hw, err := client.HardwareDevices()
				if err != nil {
					return err
				}
				status, err := client.Status()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, hw)
				}
				out := cmd.OutOrStdout()
				rows := deviceRows("output", hw.Outputs, status.Intent.Output)
				rows = append(rows, deviceRows("input", hw.Inputs, status.Intent.Input)...)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No hardware devices found")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"", "Kind", "Name", "Description"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	var output, input string
	var clear bool
	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Choose the hardware output and input",
		Long: "Choose the hardware output and input. Omitted flags keep the current selection; " +
			"--clear removes both.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputSet := cmd.Flags().Changed("output")
			inputSet := cmd.Flags().Changed("input")
			if !clear && !outputSet && !inputSet {
				return errors.New("nothing to select (use --output, --input, or --clear)")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				req := ipc.DevicesRequest{Output: output, Input: input}
				if !clear {
					status, err := client.Status()
					if err != nil {
						return err
					}
					if !outputSet {
						req.Output = status.Intent.Output
					}
					if !inputSet {
						req.Input = status.Intent.Input
					}
				}
				resp, err := client.SelectDevices(req)
				if err != nil {
					return err
				}
				return printPass(cmd, ctx, resp.Result)
			})
		},
	}
	selectCmd.Flags().StringVar(&output, "output", "", "Hardware sink name")
	selectCmd.Flags().StringVar(&input, "input", "", "Hardware source name")
	selectCmd.Flags().BoolVar(&clear, "clear", false, "Clear both selections")

	devicesCmd.AddCommand(selectCmd)
	return devicesCmd
}

func deviceRows(kind string, devices []pulse.Device, selected string) [][]string {
	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		marker := ""
		if dev.Name == selected {
			marker = "*"
		}
		rows = append(rows, []string{marker, kind, dev.Name, dev.Description})
	}
	return rows
}
