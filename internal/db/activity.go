package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/types"
)

const activityColumns = `id, type, prospect_id, campaign_id, target_label, detail, status, triggered_by, created_at`

// AppendActivity persists one activity event.
func (db *DB) AppendActivity(ctx context.Context, ev *types.ActivityEvent) error {
	return insertActivity(ctx, db.pool, ev)
}

func insertActivity(ctx context.Context, q querier, ev *types.ActivityEvent) error {
	if ev == nil {
		return nil
	}
	_, err := q.Exec(ctx,
		`INSERT INTO activity_events (`+activityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, string(ev.Type), ev.ProspectID, ev.CampaignID, ev.TargetLabel,
		ev.Detail, string(ev.Status), string(ev.TriggeredBy), ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}
	return nil
}

// RecentActivity returns up to limit events, newest first.
func (db *DB) RecentActivity(ctx context.Context, limit int) ([]types.ActivityEvent, error) {
	return db.ListActivity(ctx, types.ActivityFilter{Limit: limit})
}

// ListActivity returns events matching the filter, newest first.
func (db *DB) ListActivity(ctx context.Context, filter types.ActivityFilter) ([]types.ActivityEvent, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProspectID != nil {
		args = append(args, *filter.ProspectID)
		conds = append(conds, fmt.Sprintf("prospect_id = $%d", len(args)))
	}
	if filter.CampaignID != nil {
		args = append(args, *filter.CampaignID)
		conds = append(conds, fmt.Sprintf("campaign_id = $%d", len(args)))
	}
	if filter.BeforeID > 0 {
		args = append(args, filter.BeforeID)
		conds = append(conds, fmt.Sprintf("id < $%d", len(args)))
	}

	query := `SELECT ` + activityColumns + ` FROM activity_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(filter.Limit, 50, 500))
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	return events, nil
}

func scanActivity(row pgx.CollectableRow) (types.ActivityEvent, error) {
	var (
		ev                        types.ActivityEvent
		evType, status, triggered string
	)
	err := row.Scan(&ev.ID, &evType, &ev.ProspectID, &ev.CampaignID, &ev.TargetLabel,
		&ev.Detail, &status, &triggered, &ev.CreatedAt)
	ev.Type = types.ActivityType(evType)
	ev.Status = types.ActivityStatus(status)
	ev.TriggeredBy = types.Actor(triggered)
	return ev, err
}
