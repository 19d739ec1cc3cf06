package dispatch_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mux/internal/dispatch"
	"mux/internal/logging"
	"mux/internal/mixer"
	"mux/internal/provision"
	"mux/internal/pulse"
	"mux/internal/resolver"
	"mux/internal/routing"
	"mux/internal/services"
	"mux/internal/store"
	"mux/internal/testsupport"
)

type fixture struct {
	fake     *testsupport.FakeServer
	client   *pulse.Client
	res      *resolver.Resolver
	rec      *routing.Reconciler
	state    *mixer.State
	store    *store.Store
	disp     *dispatch.Dispatcher
	streamer bool
}

func newFixture(t *testing.T, intent mixer.RoutingIntent) *fixture {
	t.Helper()
	f := &fixture{fake: testsupport.NewFakeServer(), streamer: intent.StreamerMode}
	f.fake.AddHardwareSink("HW1", "Headphones")
	f.fake.AddHardwareSource("MIC1", "Microphone")
	f.client = pulse.NewClient("pactl", pulse.WithExecutor(f.fake))
	f.res = resolver.New(f.client)
	f.rec = routing.New(f.client, provision.New(f.client, logging.NewNop(), 0), f.res, routing.Options{})
	if _, err := f.rec.Apply(context.Background(), intent, "test"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	f.state = mixer.NewState()
	f.store = store.Open(filepath.Join(t.TempDir(), "state.json"), store.Options{Debounce: time.Hour})
	f.disp = dispatch.New(f.client, f.res, f.state, f.store, dispatch.Options{
		StreamerMode: func() bool { return f.streamer },
	})
	return f
}

func TestSetVolumeClampsAndUnmutes(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()
	f.fake.SetLinkMuted("Link_User_Game", true)
	f.state.Update(mixer.Game, func(cs *mixer.ChannelState) { cs.Muted = true })

	for _, tc := range []struct{ in, want int }{{150, 100}, {-20, 0}, {37, 37}} {
		out, err := f.disp.SetVolume(ctx, mixer.Game, mixer.TrackUser, tc.in)
		if err != nil {
			t.Fatalf("SetVolume(%d): %v", tc.in, err)
		}
		if !out.Applied || out.Volume != tc.want || out.Muted {
			t.Fatalf("SetVolume(%d) = %+v", tc.in, out)
		}
		link, _ := f.fake.Link("Link_User_Game")
		if link.Volume != tc.want || link.Muted {
			t.Fatalf("server link after SetVolume(%d): %+v", tc.in, link)
		}
	}

	for _, c := range f.fake.CommandsWithPrefix("set-sink-input-volume") {
		value, err := strconv.Atoi(strings.TrimSuffix(c.Args[len(c.Args)-1], "%"))
		if err != nil || value < 0 || value > 100 {
			t.Fatalf("command carried out-of-range value: %s", c)
		}
	}
	if v, _ := f.store.Snapshot().UserVolume(mixer.Game); v != 37 {
		t.Fatalf("persisted volume = %d", v)
	}
	if !f.store.Pending() {
		t.Fatal("volume change should schedule a save")
	}
}

func TestAdjustVolumeUsesCurrentValue(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()
	out, _ := f.disp.AdjustVolume(ctx, mixer.Media, mixer.TrackUser, 5)
	if out.Volume != 100 {
		t.Fatalf("expected clamp at 100, got %d", out.Volume)
	}
	out, _ = f.disp.AdjustVolume(ctx, mixer.Media, mixer.TrackUser, -5)
	if out.Volume != 95 || f.state.Snapshot(mixer.Media).Volume != 95 {
		t.Fatalf("expected 95, got %+v", out)
	}
}

func TestToggleMuteFlipsLink(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1", Input: "MIC1"})
	ctx := context.Background()

	out, err := f.disp.ToggleMute(ctx, mixer.Mic, mixer.TrackUser)
	if err != nil || !out.Applied || !out.Muted {
		t.Fatalf("ToggleMute = %+v, %v", out, err)
	}
	if link, _ := f.fake.Link("Link_Mic_Chat"); !link.Muted {
		t.Fatal("mic chat link not muted")
	}
	out, _ = f.disp.ToggleMute(ctx, mixer.Mic, mixer.TrackUser)
	if out.Muted || f.state.Snapshot(mixer.Mic).Muted {
		t.Fatal("second toggle should unmute")
	}
}

func TestConcurrentTogglesSeeEachOther(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1", Input: "MIC1"})
	ctx := context.Background()

	const toggles = 20
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		muted int
	)
	for range toggles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.disp.ToggleMute(ctx, mixer.Mic, mixer.TrackUser)
			if err != nil {
				t.Errorf("ToggleMute: %v", err)
				return
			}
			if out.Muted {
				mu.Lock()
				muted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if muted != toggles/2 {
		t.Fatalf("%d of %d toggles muted, want %d", muted, toggles, toggles/2)
	}
	if f.state.Snapshot(mixer.Mic).Muted {
		t.Fatal("an even number of toggles must leave the track unmuted")
	}
	if link, _ := f.fake.Link("Link_Mic_Chat"); link.Muted {
		t.Fatal("server link left muted")
	}
}

func TestConcurrentAdjustmentsAccumulate(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.disp.AdjustVolume(ctx, mixer.Game, mixer.TrackUser, -5); err != nil {
				t.Errorf("AdjustVolume: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.state.Snapshot(mixer.Game).Volume; got != 50 {
		t.Fatalf("volume = %d, want 50", got)
	}
}

func TestStreamCommandsIgnoredOutsideStreamerMode(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()
	f.fake.ResetCommands()

	out, err := f.disp.SetVolume(ctx, mixer.Chat, mixer.TrackStream, 20)
	if err != nil || out.Applied || out.Skipped != dispatch.SkipStreamerModeOff {
		t.Fatalf("SetVolume = %+v, %v", out, err)
	}
	out, err = f.disp.ToggleMute(ctx, mixer.Chat, mixer.TrackStream)
	if err != nil || out.Skipped != dispatch.SkipStreamerModeOff {
		t.Fatalf("ToggleMute = %+v, %v", out, err)
	}
	if n := len(f.fake.Commands()); n != 0 {
		t.Fatalf("expected no server commands, got %d", n)
	}
	if _, ok := f.store.Snapshot().StreamVolume(mixer.Chat); ok {
		t.Fatal("ignored command must not persist a stream volume")
	}
}

func TestStreamCommandsApplyInStreamerMode(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1", StreamerMode: true})
	out, err := f.disp.SetVolume(context.Background(), mixer.Chat, mixer.TrackStream, 20)
	if err != nil || !out.Applied {
		t.Fatalf("SetVolume = %+v, %v", out, err)
	}
	if link, _ := f.fake.Link("Link_Stream_Chat"); link.Volume != 20 {
		t.Fatalf("stream link volume = %d", link.Volume)
	}
}

func TestStaleIDRetriedAfterRefresh(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()
	stale, err := f.client.ListSinkInputs(ctx)
	if err != nil {
		t.Fatalf("ListSinkInputs: %v", err)
	}
	if _, err := f.rec.Apply(ctx, mixer.RoutingIntent{Output: "HW1"}, "rebuild"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	f.res.Store(stale)

	out, err := f.disp.SetVolume(ctx, mixer.Chat, mixer.TrackUser, 61)
	if err != nil || !out.Applied {
		t.Fatalf("SetVolume with stale id = %+v, %v", out, err)
	}
	if link, _ := f.fake.Link("Link_User_Chat"); link.Volume != 61 {
		t.Fatalf("fresh link volume = %d", link.Volume)
	}
}

func TestMissingLinkStillRecordsVolume(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{})
	out, err := f.disp.SetVolume(context.Background(), mixer.Game, mixer.TrackUser, 30)
	if err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if out.Applied || out.Skipped != dispatch.SkipLinkMissing || out.Volume != 30 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if v, _ := f.store.Snapshot().UserVolume(mixer.Game); v != 30 {
		t.Fatalf("persisted volume = %d", v)
	}
}

func TestServerFailureIsNotReturned(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	f.fake.FailNext("set-sink-input-mute", 2)
	out, err := f.disp.ToggleMute(context.Background(), mixer.Game, mixer.TrackUser)
	if err != nil {
		t.Fatalf("server failures must not surface: %v", err)
	}
	if out.Applied || out.Skipped != dispatch.SkipServerFailure || out.Muted {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestMoveApplication(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()
	id := f.fake.AddApp("Spotify", "Music", "Game")

	out, err := f.disp.MoveApplication(ctx, id, mixer.Media)
	if err != nil || !out.Applied {
		t.Fatalf("MoveApplication = %+v, %v", out, err)
	}
	if f.fake.AppSink(id) != "Media" {
		t.Fatalf("app on %q", f.fake.AppSink(id))
	}

	if _, err := f.disp.MoveApplication(ctx, id, mixer.Mic); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Mic target should be rejected, got %v", err)
	}
	if _, err := f.disp.MoveApplication(ctx, " ", mixer.Chat); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty id should be rejected, got %v", err)
	}
	out, err = f.disp.MoveApplication(ctx, "9999", mixer.Chat)
	if err != nil || out.Applied || out.Skipped != dispatch.SkipServerFailure {
		t.Fatalf("unknown input = %+v, %v", out, err)
	}
}

func TestUnknownChannelRejected(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1"})
	ctx := context.Background()
	if _, err := f.disp.SetVolume(ctx, mixer.Channel("Voice"), mixer.TrackUser, 10); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.disp.ToggleMute(ctx, mixer.Game, mixer.Track("both")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRestoreAppliesWithoutPersisting(t *testing.T) {
	f := newFixture(t, mixer.RoutingIntent{Output: "HW1", StreamerMode: true})
	applied, err := f.disp.Restore(context.Background(), mixer.Media, mixer.TrackStream, 44, true)
	if err != nil || !applied {
		t.Fatalf("Restore = %v, %v", applied, err)
	}
	link, _ := f.fake.Link("Link_Stream_Media")
	if link.Volume != 44 || !link.Muted {
		t.Fatalf("link after restore: %+v", link)
	}
	snap := f.state.Snapshot(mixer.Media)
	if snap.StreamVolume != 44 || !snap.StreamMuted {
		t.Fatalf("state after restore: %+v", snap)
	}
	if f.store.Pending() {
		t.Fatal("restore must not schedule a save")
	}
}
