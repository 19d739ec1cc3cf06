package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Pass is one journaled reconciliation pass.
type Pass struct {
	PassID       string    `json:"pass_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Output       string    `json:"output,omitempty"`
	Input        string    `json:"input,omitempty"`
	StreamerMode bool      `json:"streamer_mode"`
	LinksRemoved int       `json:"links_removed"`
	LinksCreated int       `json:"links_created"`
	Failures     int       `json:"failures"`
	Reason       string    `json:"reason"`
}

// Duration returns how long the pass took.
func (p Pass) Duration() time.Duration { return p.FinishedAt.Sub(p.StartedAt) }

// Event is a journaled drift correction or other notable change.
type Event struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Channel string    `json:"channel,omitempty"`
	Detail  string    `json:"detail"`
}

// Event kinds.
const (
	EventVolumeDrift = "volume_drift"
	EventMuteDrift   = "mute_drift"
	EventHotplug     = "hotplug"
)

// RecordPass stores a completed pass. Re-recording a pass id replaces it.
func (j *Journal) RecordPass(ctx context.Context, p Pass) error {
	_, err := j.execWithRetry(ctx, `INSERT OR REPLACE INTO passes
		(pass_id, started_at, finished_at, output, input, streamer_mode,
		 links_removed, links_created, failures, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PassID,
		formatTime(p.StartedAt),
		formatTime(p.FinishedAt),
		nullableString(p.Output),
		nullableString(p.Input),
		boolToInt(p.StreamerMode),
		p.LinksRemoved,
		p.LinksCreated,
		p.Failures,
		p.Reason,
	)
	if err != nil {
		return fmt.Errorf("record pass %s: %w", p.PassID, err)
	}
	return nil
}

// RecordEvent stores an event and returns its id. A zero At means now.
func (j *Journal) RecordEvent(ctx context.Context, e Event) (int64, error) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	res, err := j.execWithRetry(ctx,
		`INSERT INTO events (at, kind, channel, detail) VALUES (?, ?, ?, ?)`,
		formatTime(e.At), e.Kind, nullableString(e.Channel), e.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("record %s event: %w", e.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event id: %w", err)
	}
	return id, nil
}

// History returns the most recent passes, newest first. A non-positive limit
// returns every pass.
func (j *Journal) History(ctx context.Context, limit int) ([]Pass, error) {
	query := `SELECT pass_id, started_at, finished_at, output, input, streamer_mode,
		links_removed, links_created, failures, reason
		FROM passes ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		var (
			p                 Pass
			started, finished string
			output, input     sql.NullString
			streamer          int
		)
		if err := rows.Scan(&p.PassID, &started, &finished, &output, &input, &streamer,
			&p.LinksRemoved, &p.LinksCreated, &p.Failures, &p.Reason); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		if t, err := parseTimeString(started); err == nil {
			p.StartedAt = t
		}
		if t, err := parseTimeString(finished); err == nil {
			p.FinishedAt = t
		}
		p.Output = output.String
		p.Input = input.String
		p.StreamerMode = streamer != 0
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// Events returns the most recent events, newest first.
func (j *Journal) Events(ctx context.Context, limit int) ([]Event, error) {
	query := `SELECT id, at, kind, channel, detail FROM events ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			at      string
			channel sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Kind, &channel, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if t, err := parseTimeString(at); err == nil {
			e.At = t
		}
		e.Channel = channel.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Prune deletes passes and events older than cutoff and returns the number
// of rows removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	stamp := formatTime(cutoff)
	var total int64
	for _, query := range []string{
		"DELETE FROM passes WHERE started_at < ?",
		"DELETE FROM events WHERE at < ?",
	} {
		res, err := j.execWithRetry(ctx, query, stamp)
		if err != nil {
			return total, fmt.Errorf("prune journal: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
