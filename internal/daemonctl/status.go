package daemonctl

import (
	"context"
	"errors"
	"fmt"

	"mux/internal/config"
	"mux/internal/deps"
	"mux/internal/ipc"
	"mux/internal/preflight"
)

// StatusLine is one labelled row of the status display.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// Snapshot is the daemon status plus locally computed checks. It is usable
// when the daemon is not running.
type Snapshot struct {
	*ipc.StatusResponse
	SystemChecks      []StatusLine      `json:"system_checks"`
	DependencySummary DependencySummary `json:"dependency_summary"`
}

// BuildStatusSnapshot collects daemon status and falls back to local probes
// for dependencies when the daemon is unreachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	statusResp := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if len(statusResp.Dependencies) == 0 {
		statusResp.Dependencies = preflight.CheckSystemDeps(ctx, cfg)
	}

	probe := preflight.ProbeAudioServer(ctx, cfg, nil)
	return &Snapshot{
		StatusResponse:    statusResp,
		SystemChecks:      BuildSystemChecks(statusResp.Running, statusResp.HotplugMonitored, cfg.Hotplug.Enabled, probe),
		DependencySummary: BuildDependencySummary(statusResp.Dependencies),
	}, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and
// probes.
func BuildSystemChecks(daemonRunning, hotplugActive, hotplugEnabled bool, probe preflight.ServerProbe) []StatusLine {
	lines := make([]StatusLine, 0, 4)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Mux", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, StatusLine{Label: "Mux", Severity: "warn", Detail: "Not running (run `mux start`)"})
	}

	if probe.Reachable {
		lines = append(lines, StatusLine{Label: "Audio Server", Severity: "ok", Detail: probe.ServerDetail()})
		lines = append(lines, StatusLine{Label: "Defaults", Severity: "info", Detail: probe.DefaultsDetail()})
	} else {
		lines = append(lines, StatusLine{Label: "Audio Server", Severity: "error", Detail: probe.ServerDetail()})
	}

	switch {
	case !hotplugEnabled:
		lines = append(lines, StatusLine{Label: "Hot-plug", Severity: "info", Detail: "Disabled"})
	case hotplugActive:
		lines = append(lines, StatusLine{Label: "Hot-plug", Severity: "ok", Detail: "Netlink monitoring active"})
	case !daemonRunning:
		lines = append(lines, StatusLine{Label: "Hot-plug", Severity: "info", Detail: "Inactive (daemon not running)"})
	default:
		lines = append(lines, StatusLine{Label: "Hot-plug", Severity: "warn", Detail: "Netlink unavailable (run `mux reconcile` after plugging devices)"})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []deps.Status) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

// DependencySeverity maps one dependency onto ok, warn, or error.
func DependencySeverity(dep deps.Status) string {
	if dep.Available {
		return "ok"
	}
	if dep.Optional {
		return "warn"
	}
	return "error"
}
