// Package deps reports whether the external programs mux drives are
// installed.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mux/internal/config"
)

const probeTimeout = 2 * time.Second

// Requirement defines an external program mux relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are run to fill Status.Version.
	VersionArgs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the programs the daemon needs for cfg.
func Requirements(cfg *config.Config) []Requirement {
	binary := "pactl"
	if cfg != nil {
		binary = cfg.PactlBinary()
	}
	return []Requirement{
		{
			Name:        "pactl",
			Command:     binary,
			Description: "Audio server control; every device, link and volume change goes through it",
			VersionArgs: []string{"--version"},
		},
	}
}

// Resolve checks the requirements of cfg.
func Resolve(ctx context.Context, cfg *config.Config) []Status {
	return CheckBinaries(ctx, Requirements(cfg))
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		if len(req.VersionArgs) > 0 {
			status.Version = probeVersion(ctx, path, req.VersionArgs)
		}
		results = append(results, status)
	}
	return results
}

// probeVersion returns the first output line of the version command, or ""
// when it cannot be run.
func probeVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
