package hotkeys

import (
	"context"
	"log/slog"

	"mux/internal/dispatch"
	"mux/internal/logging"
	"mux/internal/mixer"
)

// DefaultStep is the volume change of one up/down press.
const DefaultStep = 5

// Commander is the dispatcher surface hotkeys drive.
type Commander interface {
	AdjustVolume(ctx context.Context, ch mixer.Channel, track mixer.Track, delta int) (dispatch.Outcome, error)
	ToggleMute(ctx context.Context, ch mixer.Channel, track mixer.Track) (dispatch.Outcome, error)
}

// DispatchHandler returns a Handler that turns volume actions into
// AdjustVolume by step and mute actions into ToggleMute.
func DispatchHandler(cmd Commander, step int, logger *slog.Logger) Handler {
	if step <= 0 {
		step = DefaultStep
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, b mixer.HotkeyBinding) {
		var err error
		track := b.Action.Track()
		if delta := b.Action.Delta(step); delta != 0 {
			_, err = cmd.AdjustVolume(ctx, b.Channel, track, delta)
		} else {
			_, err = cmd.ToggleMute(ctx, b.Channel, track)
		}
		if err != nil {
			logger.Warn("hotkey action rejected",
				logging.String(logging.FieldEventType, "hotkey_failed"),
				logging.Channel(b.Channel),
				logging.String("action", string(b.Action)),
				logging.Error(err),
			)
		}
	}
}
