package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mux/internal/dispatch"
	"mux/internal/routing"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutcome(cmd *cobra.Command, ctx *commandContext, outcome dispatch.Outcome) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, outcome)
	}
	writeOutcome(cmd.OutOrStdout(), outcome)
	return nil
}

func writeOutcome(out io.Writer, o dispatch.Outcome) {
	label := string(o.Channel)
	if o.Track != "" {
		label = fmt.Sprintf("%s (%s)", label, o.Track)
	}
	if o.Skipped != "" {
		fmt.Fprintf(out, "%s: skipped (%s)\n", label, o.Skipped)
		return
	}
	state := "volume " + strconv.Itoa(o.Volume)
	if o.Muted {
		state += ", muted"
	}
	if !o.Applied {
		state += " (not applied)"
	}
	fmt.Fprintf(out, "%s: %s\n", label, state)
}

func printPass(cmd *cobra.Command, ctx *commandContext, res routing.Result) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pass %s (%s): +%d/-%d links in %s\n",
		shortID(res.PassID), res.Reason, res.LinksCreated, res.LinksRemoved, res.Duration().Round(time.Millisecond))
	if res.OutputMissing {
		fmt.Fprintf(out, "Output %s is not present; links will be rebuilt when it returns\n", res.Intent.Output)
	}
	if res.Failures > 0 {
		fmt.Fprintf(out, "%d link operations failed; see `mux logs`\n", res.Failures)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
