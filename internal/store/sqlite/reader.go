package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Recent returns up to limit journal entries, newest first. A non-empty
// outcome filters by outcome.
func (j *Journal) Recent(ctx context.Context, limit int, outcome string) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, key, title, body, outcome, error, at_ms FROM alerts`
	args := []interface{}{}
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var atMs int64
		if err := rows.Scan(&e.ID, &e.Key, &e.Title, &e.Body, &e.Outcome, &errText, &atMs); err != nil {
			return nil, fmt.Errorf("sqlite scan alerts: %w", err)
		}
		e.Error = errText.String
		e.At = time.UnixMilli(atMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByOutcome returns the number of journaled records per outcome.
func (j *Journal) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM alerts GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("sqlite count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("sqlite scan counts: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
