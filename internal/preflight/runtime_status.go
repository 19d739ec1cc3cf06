package preflight

import (
	"context"
	"fmt"
	"time"

	"mux/internal/config"
	"mux/internal/pulse"
)

// ServerProbe reports the current audio server snapshot.
type ServerProbe struct {
	Socket     string
	SocketOK   bool
	Reachable  bool
	Info       pulse.ServerInfo
	ProbeError string
}

// ProbeAudioServer inspects the native socket and queries the server through
// the configured control binary.
func ProbeAudioServer(ctx context.Context, cfg *config.Config, client *pulse.Client) ServerProbe {
	probe := ServerProbe{Socket: ServerSocketPath()}
	probe.SocketOK = CheckServerSocket(probe.Socket).Passed
	if client == nil {
		binary := pulse.DefaultBinary
		if cfg != nil {
			binary = cfg.PactlBinary()
		}
		client = pulse.NewClient(binary, pulse.WithTimeout(2*time.Second))
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	info, err := client.ServerInfo(probeCtx)
	if err != nil {
		probe.ProbeError = err.Error()
		return probe
	}
	probe.Reachable = true
	probe.Info = info
	return probe
}

// ServerDetail renders a display-friendly summary for status UIs.
func (p ServerProbe) ServerDetail() string {
	if !p.Reachable {
		if !p.SocketOK {
			return fmt.Sprintf("Not reachable (no socket at %s)", p.Socket)
		}
		return "Not reachable"
	}
	name := p.Info.ServerName
	if name == "" {
		name = "Audio server"
	}
	if p.Info.ServerVersion != "" {
		return fmt.Sprintf("%s %s", name, p.Info.ServerVersion)
	}
	return name
}

// DefaultsDetail describes the server's current default sink and source.
func (p ServerProbe) DefaultsDetail() string {
	sink, source := p.Info.DefaultSink, p.Info.DefaultSource
	if sink == "" {
		sink = "none"
	}
	if source == "" {
		source = "none"
	}
	return fmt.Sprintf("sink %s, source %s", sink, source)
}
