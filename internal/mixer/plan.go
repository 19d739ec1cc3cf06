package mixer

import "mux/internal/naming"

// Latencies are the per-category loopback latency budgets in milliseconds.
type Latencies struct {
	User   int
	Stream int
	Mic    int
}

// DefaultLatencies match the stock configuration.
var DefaultLatencies = Latencies{User: 40, Stream: 60, Mic: 40}

// Link is one desired loopback.
type Link struct {
	Name      naming.LinkName
	Source    string
	Sink      string
	LatencyMS int
}

// Plan is the desired topology for an intent.
type Plan struct {
	Intent    RoutingIntent
	StreamMix bool
	Links     []Link
}

// BaseDevices are provisioned on every pass regardless of intent.
func BaseDevices() []VirtualDevice {
	devices := make([]VirtualDevice, 0, len(naming.ChannelDevices)+2)
	for _, name := range naming.ChannelDevices {
		devices = append(devices, VirtualDevice{Name: name, Description: name, Kind: KindSink, Purpose: PurposeChannelOutput})
	}
	devices = append(devices,
		VirtualDevice{Name: naming.DeviceMicBus, Description: naming.MicBusLabel, Kind: KindSink, Purpose: PurposeMicBus},
		VirtualDevice{Name: naming.DeviceMicPublic, Description: naming.MicPublicLabel, Kind: KindSource, Purpose: PurposeMicPublic},
	)
	return devices
}

// StreamMixDevice is present only in streamer mode.
func StreamMixDevice() VirtualDevice {
	return VirtualDevice{Name: naming.DeviceStreamMix, Description: naming.StreamMixLabel, Kind: KindSink, Purpose: PurposeStreamMix}
}

// PlanFor computes the exact link set implied by intent. Without a selected
// output no links are planned at all.
func PlanFor(intent RoutingIntent, lat Latencies) Plan {
	plan := Plan{Intent: intent, StreamMix: intent.StreamerMode}
	if intent.Output == "" {
		return plan
	}
	for _, dev := range naming.ChannelDevices {
		plan.Links = append(plan.Links, Link{
			Name:      naming.LinkName{Category: naming.CategoryUser, Target: dev},
			Source:    naming.Monitor(dev),
			Sink:      intent.Output,
			LatencyMS: lat.User,
		})
		if intent.StreamerMode {
			plan.Links = append(plan.Links, Link{
				Name:      naming.LinkName{Category: naming.CategoryStream, Target: dev},
				Source:    naming.Monitor(dev),
				Sink:      naming.DeviceStreamMix,
				LatencyMS: lat.Stream,
			})
		}
	}
	if intent.Input != "" {
		plan.Links = append(plan.Links, Link{
			Name:      naming.LinkName{Category: naming.CategoryMic, Target: naming.MicTargetChat},
			Source:    intent.Input,
			Sink:      naming.DeviceMicBus,
			LatencyMS: lat.Mic,
		})
		if intent.StreamerMode {
			plan.Links = append(plan.Links, Link{
				Name:      naming.LinkName{Category: naming.CategoryMic, Target: naming.MicTargetStream},
				Source:    intent.Input,
				Sink:      naming.DeviceStreamMix,
				LatencyMS: lat.Mic,
			})
		}
	}
	return plan
}

// LinkNames returns the encoded names of the plan's links.
func (p Plan) LinkNames() []string {
	names := make([]string, 0, len(p.Links))
	for _, l := range p.Links {
		names = append(names, l.Name.String())
	}
	return names
}
