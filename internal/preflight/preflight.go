package preflight

import (
	"context"
	"path/filepath"

	"mux/internal/config"
	"mux/internal/pulse"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every applicable check for the given config. The client
// may be nil, in which case one is built from the config.
func RunAll(ctx context.Context, cfg *config.Config, client *pulse.Client) []Result {
	if cfg == nil {
		return nil
	}
	if client == nil {
		client = pulse.NewClient(cfg.PactlBinary(), pulse.WithTimeout(cfg.CommandTimeout()))
	}

	results := []Result{
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCreatableDirectory("State directory", filepath.Dir(cfg.Paths.StateFile)),
	}
	if cfg.Journal.Enabled {
		results = append(results, CheckCreatableDirectory("Journal directory", filepath.Dir(cfg.Paths.JournalPath)))
	}
	results = append(results, CheckAudioServer(ctx, client))
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
