package mixer

import (
	"sync"
	"sync/atomic"
)

// DefaultVolume is the starting volume of a channel before anything is observed.
const DefaultVolume = 100

// ChannelState is the observed and intended state of one channel.
type ChannelState struct {
	Channel      Channel       `json:"channel"`
	Volume       int           `json:"volume"`
	StreamVolume int           `json:"stream_volume"`
	Muted        bool          `json:"muted"`
	StreamMuted  bool          `json:"stream_muted"`
	Apps         []AttachedApp `json:"apps"`
}

// TrackVolume returns the volume of the given track.
func (s ChannelState) TrackVolume(track Track) int {
	if track == TrackStream {
		return s.StreamVolume
	}
	return s.Volume
}

// TrackMuted returns the mute flag of the given track.
func (s ChannelState) TrackMuted(track Track) bool {
	if track == TrackStream {
		return s.StreamMuted
	}
	return s.Muted
}

type channelSlot struct {
	mu                sync.Mutex
	state             ChannelState
	userInteracting   bool
	streamInteracting bool
}

// State guards every channel behind its own lock. The synchronizer,
// dispatcher, and hotkey callbacks all go through it.
type State struct {
	slots   map[Channel]*channelSlot
	appDrag atomic.Bool
}

// NewState creates the fixed channel set with default volumes.
func NewState() *State {
	s := &State{slots: make(map[Channel]*channelSlot, len(AllChannels))}
	for _, ch := range AllChannels {
		s.slots[ch] = &channelSlot{state: ChannelState{
			Channel:      ch,
			Volume:       DefaultVolume,
			StreamVolume: DefaultVolume,
		}}
	}
	return s
}

// Snapshot returns a copy of one channel.
func (s *State) Snapshot(ch Channel) ChannelState {
	slot, ok := s.slots[ch]
	if !ok {
		return ChannelState{Channel: ch}
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	out := slot.state
	out.Apps = append([]AttachedApp(nil), slot.state.Apps...)
	return out
}

// All returns copies of every channel in display order.
func (s *State) All() []ChannelState {
	out := make([]ChannelState, 0, len(AllChannels))
	for _, ch := range AllChannels {
		out = append(out, s.Snapshot(ch))
	}
	return out
}

// Update mutates one channel under its lock.
func (s *State) Update(ch Channel, fn func(*ChannelState)) {
	slot, ok := s.slots[ch]
	if !ok {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	fn(&slot.state)
}

// SetInteraction marks a track control as being dragged by the user.
func (s *State) SetInteraction(ch Channel, track Track, active bool) {
	slot, ok := s.slots[ch]
	if !ok {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if track == TrackStream {
		slot.streamInteracting = active
	} else {
		slot.userInteracting = active
	}
}

// Interacting reports whether a track control is being dragged.
func (s *State) Interacting(ch Channel, track Track) bool {
	slot, ok := s.slots[ch]
	if !ok {
		return false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if track == TrackStream {
		return slot.streamInteracting
	}
	return slot.userInteracting
}

// SetAppDrag records whether an application is being dragged between channels.
func (s *State) SetAppDrag(active bool) { s.appDrag.Store(active) }

// AppDragActive reports whether an application drag is in progress.
func (s *State) AppDragActive() bool { return s.appDrag.Load() }

// Observation is what one sync tick read back for a track.
type Observation struct {
	// VolumeApplied is false when the write was suppressed by an active drag.
	VolumeApplied bool
	PrevVolume    int
	PrevMuted     bool
}

// Observe stores a volume and mute read from the server for a track. The
// volume is skipped while the user is dragging that track's control; the
// mute flag is always stored.
func (s *State) Observe(ch Channel, track Track, volume int, muted bool) Observation {
	slot, ok := s.slots[ch]
	if !ok {
		return Observation{}
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	interacting := slot.userInteracting
	if track == TrackStream {
		interacting = slot.streamInteracting
	}
	obs := Observation{
		PrevVolume: slot.state.TrackVolume(track),
		PrevMuted:  slot.state.TrackMuted(track),
	}
	if !interacting {
		obs.VolumeApplied = true
		if track == TrackStream {
			slot.state.StreamVolume = Clamp(volume)
		} else {
			slot.state.Volume = Clamp(volume)
		}
	}
	if track == TrackStream {
		slot.state.StreamMuted = muted
	} else {
		slot.state.Muted = muted
	}
	return obs
}

// SetApps replaces a channel's attached application list.
func (s *State) SetApps(ch Channel, apps []AttachedApp) {
	s.Update(ch, func(cs *ChannelState) {
		cs.Apps = append([]AttachedApp(nil), apps...)
	})
}
