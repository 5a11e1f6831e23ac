package database

import (
	"context"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// MonitorEventRepository handles the monitor_events table: the operational
// audit log every Task writes a row to on each run (spec.md §4.4).
type MonitorEventRepository struct {
	client *Client
}

// NewMonitorEventRepository constructs a MonitorEventRepository.
func NewMonitorEventRepository(client *Client) *MonitorEventRepository {
	return &MonitorEventRepository{client: client}
}

// Record appends one audit entry. Monitor tasks call this after every run,
// success or failure, per spec.md §4.4's "always write a MonitorEvent" rule.
func (r *MonitorEventRepository) Record(ctx context.Context, taskName, event, details string) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO monitor_events (task_name, event, details) VALUES ($1, $2, $3)`,
		taskName, event, details)
	if err != nil {
		return fmt.Errorf("record monitor event: %w", err)
	}
	return nil
}

// RecentForTask returns the most recent events for a named task, newest
// first, for the MonitorCallHistory task and diagnostics endpoints.
func (r *MonitorEventRepository) RecentForTask(ctx context.Context, taskName string, limit int) ([]*entity.MonitorEvent, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT monitor_event_id, task_name, event, details, created_at
		FROM monitor_events WHERE task_name = $1 ORDER BY created_at DESC LIMIT $2`,
		taskName, limit)
	if err != nil {
		return nil, fmt.Errorf("list monitor events: %w", err)
	}
	defer rows.Close()

	var out []*entity.MonitorEvent
	for rows.Next() {
		e := &entity.MonitorEvent{}
		if err := rows.Scan(&e.MonitorEventID, &e.TaskName, &e.Event, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan monitor event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge deletes monitor events older than the retention window, the backing
// store for the Purge default task.
func (r *MonitorEventRepository) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := r.client.ExecContext(ctx,
		`DELETE FROM monitor_events WHERE created_at < now() - ($1 || ' days')::interval`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("purge monitor events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
