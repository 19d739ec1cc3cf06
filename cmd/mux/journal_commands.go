package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mux/internal/ipc"
)

const journalTimeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reconciliation passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Passes)
				}
				out := cmd.OutOrStdout()
				if len(resp.Passes) == 0 {
					fmt.Fprintln(out, "No passes recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Passes))
				for _, p := range resp.Passes {
					rows = append(rows, []string{
						p.StartedAt.Local().Format(journalTimeLayout),
						p.Reason,
						orNone(p.Output),
						orNone(p.Input),
						yesNo(p.StreamerMode),
						fmt.Sprintf("+%d/-%d", p.LinksCreated, p.LinksRemoved),
						strconv.Itoa(p.Failures),
						p.Duration().Round(time.Millisecond).String(),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Started", "Reason", "Output", "Input", "Streamer", "Links", "Failures", "Took"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of passes to show")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent drift corrections and hot-plug events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Events(limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Events)
				}
				out := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Events))
				for _, e := range resp.Events {
					rows = append(rows, []string{e.At.Local().Format(journalTimeLayout), e.Kind, e.Channel, e.Detail})
				}
				fmt.Fprint(out, renderTable([]string{"At", "Kind", "Channel", "Detail"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	return cmd
}
