package engine

import (
	"context"
	"fmt"

	"mux/internal/journal"
	"mux/internal/logging"
	"mux/internal/metrics"
	"mux/internal/routing"
	"mux/internal/statesync"
)

// PassCompleted journals and counts a finished reconciliation pass.
func (e *Engine) PassCompleted(ctx context.Context, res routing.Result) {
	e.metrics.ObservePass(passResult(res), res.Duration(), len(res.Links))
	if e.journal == nil {
		return
	}
	err := e.journal.RecordPass(ctx, journal.Pass{
		PassID:       res.PassID,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Output:       res.Intent.Output,
		Input:        res.Intent.Input,
		StreamerMode: res.Intent.StreamerMode,
		LinksRemoved: res.LinksRemoved,
		LinksCreated: res.LinksCreated,
		Failures:     res.Failures,
		Reason:       res.Reason,
	})
	if err != nil {
		e.logger.Warn("pass not journaled",
			logging.PassID(res.PassID),
			logging.Error(err))
	}
}

func passResult(res routing.Result) string {
	switch {
	case res.OutputMissing || res.Intent.Output == "":
		return metrics.ResultNoOutput
	case res.Failures > 0:
		return metrics.ResultPartial
	default:
		return metrics.ResultOK
	}
}

// driftObserved journals a change made outside the daemon.
func (e *Engine) driftObserved(ctx context.Context, d statesync.Drift) {
	if e.journal == nil {
		return
	}
	kind := journal.EventVolumeDrift
	if d.Kind == statesync.DriftMute {
		kind = journal.EventMuteDrift
	}
	_, err := e.journal.RecordEvent(ctx, journal.Event{
		Kind:    kind,
		Channel: string(d.Channel),
		Detail:  fmt.Sprintf("%s track %s -> %s", d.Track, d.From, d.To),
	})
	if err != nil {
		e.logger.Debug("drift not journaled", logging.Error(err))
	}
}

var _ routing.Observer = (*Engine)(nil)
