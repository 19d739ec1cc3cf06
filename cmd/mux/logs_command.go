package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mux/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var req ipc.LogTailRequest
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Example: `  mux logs -n 50
  mux logs -f --component routing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The first request asks for the last N lines; later ones continue
			// from the returned byte offset.
			req.Offset, req.Limit = -1, max(lines, 0)
			if req.Limit == 0 {
				req.Offset = 0
			}
			req.WaitMillis = 1000
			return ctx.withClient(func(client *ipc.Client) error {
				return streamLogs(cmd.Context(), client, req, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&req.Follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&req.Component, "component", "", "Only show lines from one component (routing, statesync, ...)")
	return cmd
}

func streamLogs(ctx context.Context, client *ipc.Client, req ipc.LogTailRequest, out io.Writer) error {
	printed := 0
	for {
		resp, err := client.LogTail(req)
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(out, line)
		}
		printed += len(resp.Lines)
		if !req.Follow {
			if printed == 0 {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		req.Offset, req.Limit = resp.Offset, 0
	}
}
