package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyRecord rejects records with no message or phrase to store.
var ErrEmptyRecord = errors.New("journal: empty record")

// RecordAlert stores one spoken alert. A missing ID or timestamp is
// filled in.
func (j *Journal) RecordAlert(ctx context.Context, a Alert) error {
	if a.Message == "" {
		return ErrEmptyRecord
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO alerts (id, ts, message, urgency, label, distance, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Timestamp.UnixMilli(), a.Message, a.Urgency, a.Label, a.Distance, a.Position,
	)
	if err != nil {
		return fmt.Errorf("journal: insert alert: %w", err)
	}
	return nil
}

// RecordTrigger stores one activation trigger event.
func (j *Journal) RecordTrigger(ctx context.Context, t Trigger) error {
	if t.Phrase == "" {
		return ErrEmptyRecord
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO triggers (id, ts, type, phrase, heard, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Timestamp.UnixMilli(), t.Type, t.Phrase, t.Heard, t.Confidence,
	)
	if err != nil {
		return fmt.Errorf("journal: insert trigger: %w", err)
	}
	return nil
}

// RecordGuidance stores one guidance result.
func (j *Journal) RecordGuidance(ctx context.Context, g Guidance) error {
	if g.Text == "" {
		return ErrEmptyRecord
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Timestamp.IsZero() {
		g.Timestamp = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO guidance (id, ts, text, safe, priority, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Timestamp.UnixMilli(), g.Text, g.SafeToProceed, g.Priority, g.Source,
	)
	if err != nil {
		return fmt.Errorf("journal: insert guidance: %w", err)
	}
	return nil
}

// AlertQuery filters the alert history. Zero fields are ignored.
type AlertQuery struct {
	Urgency string
	Label   string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// Alerts returns alerts matching the query, newest first.
func (j *Journal) Alerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	query := `
		SELECT id, ts, message, urgency, label, distance, position
		FROM alerts WHERE 1=1`
	var args []any

	if q.Urgency != "" {
		query += " AND urgency = ?"
		args = append(args, q.Urgency)
	}
	if q.Label != "" {
		query += " AND label = ?"
		args = append(args, q.Label)
	}
	if !q.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		query += " AND ts < ?"
		args = append(args, q.Until.UnixMilli())
	}

	query += " ORDER BY ts DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
		if q.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, q.Offset)
		}
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var ts int64
		if err := rows.Scan(&a.ID, &ts, &a.Message, &a.Urgency, &a.Label, &a.Distance, &a.Position); err != nil {
			return nil, fmt.Errorf("journal: scan alert: %w", err)
		}
		a.Timestamp = time.UnixMilli(ts)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate alerts: %w", err)
	}
	return alerts, nil
}

// RecentAlerts returns the latest alerts, newest first.
func (j *Journal) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	return j.Alerts(ctx, AlertQuery{Limit: limit})
}

// RecentTriggers returns the latest trigger events, newest first.
func (j *Journal) RecentTriggers(ctx context.Context, limit int) ([]Trigger, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ts, type, phrase, heard, confidence
		FROM triggers ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var t Trigger
		var ts int64
		if err := rows.Scan(&t.ID, &ts, &t.Type, &t.Phrase, &t.Heard, &t.Confidence); err != nil {
			return nil, fmt.Errorf("journal: scan trigger: %w", err)
		}
		t.Timestamp = time.UnixMilli(ts)
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate triggers: %w", err)
	}
	return triggers, nil
}

// RecentGuidance returns the latest guidance results, newest first.
func (j *Journal) RecentGuidance(ctx context.Context, limit int) ([]Guidance, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ts, text, safe, priority, source
		FROM guidance ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query guidance: %w", err)
	}
	defer rows.Close()

	var results []Guidance
	for rows.Next() {
		var g Guidance
		var ts int64
		if err := rows.Scan(&g.ID, &ts, &g.Text, &g.SafeToProceed, &g.Priority, &g.Source); err != nil {
			return nil, fmt.Errorf("journal: scan guidance: %w", err)
		}
		g.Timestamp = time.UnixMilli(ts)
		results = append(results, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate guidance: %w", err)
	}
	return results, nil
}

// Counts summarizes table sizes for the status endpoint.
type Counts struct {
	Alerts   int64 `json:"alerts"`
	Triggers int64 `json:"triggers"`
	Guidance int64 `json:"guidance"`
}

// Count returns row counts for all tables.
func (j *Journal) Count(ctx context.Context) (Counts, error) {
	var c Counts
	row := j.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM alerts),
			(SELECT COUNT(*) FROM triggers),
			(SELECT COUNT(*) FROM guidance)`)
	if err := row.Scan(&c.Alerts, &c.Triggers, &c.Guidance); err != nil {
		return Counts{}, fmt.Errorf("journal: count: %w", err)
	}
	return c, nil
}

// Prune deletes records older than the retention window and reports how
// many rows went away.
func (j *Journal) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := time.Now().Add(-keep).UnixMilli()

	var total int64
	for _, table := range []string{"alerts", "triggers", "guidance"} {
		res, err := j.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE ts < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("journal: prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			total += n
		}
	}

	if total > 0 {
		j.logger.Info("journal pruned", "rows", total, "keep", keep)
	}
	return total, nil
}
