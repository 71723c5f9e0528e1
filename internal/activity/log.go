// Package activity records the append-only activity feed and hands each
// committed event to the live broadcast.
package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Store persists activity events.
type Store interface {
	AppendActivity(ctx context.Context, ev *types.ActivityEvent) error
	RecentActivity(ctx context.Context, limit int) ([]types.ActivityEvent, error)
	ListActivity(ctx context.Context, filter types.ActivityFilter) ([]types.ActivityEvent, error)
}

// Publisher receives events after they are durably stored.
type Publisher interface {
	Broadcast(ev types.ActivityEvent)
}

// Entry describes an event before it is stamped with an ID and time.
type Entry struct {
	Type        types.ActivityType
	ProspectID  *uuid.UUID
	CampaignID  *uuid.UUID
	TargetLabel string
	Detail      string
	Status      types.ActivityStatus
	TriggeredBy types.Actor
}

// Log stamps, stores and publishes activity events.
type Log struct {
	store  Store
	pub    Publisher
	node   *snowflake.Node
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLogger sets the logger used for publish diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// NewLog creates a Log. nodeID identifies this process among ID generators and
// must be in [0, 1023]. pub may be nil when nothing listens.
func NewLog(store Store, pub Publisher, nodeID int64, opts ...Option) (*Log, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	l := &Log{
		store:  store,
		pub:    pub,
		node:   node,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// New builds a stamped event from e without storing it. Callers that write the
// event inside their own transaction pass the result to Publish after commit.
func (l *Log) New(e Entry) *types.ActivityEvent {
	ev := &types.ActivityEvent{
		ID:          l.node.Generate().Int64(),
		Type:        e.Type,
		ProspectID:  e.ProspectID,
		CampaignID:  e.CampaignID,
		Detail:      e.Detail,
		Status:      e.Status,
		TriggeredBy: e.TriggeredBy,
		CreatedAt:   l.now(),
	}
	if ev.Status == "" {
		ev.Status = types.StatusCompleted
	}
	if e.TargetLabel != "" {
		label := e.TargetLabel
		ev.TargetLabel = &label
	}
	return ev
}

// Record stores a new event and publishes it.
func (l *Log) Record(ctx context.Context, e Entry) (*types.ActivityEvent, error) {
	ev := l.New(e)
	if err := l.store.AppendActivity(ctx, ev); err != nil {
		return nil, err
	}
	l.Publish(ev)
	return ev, nil
}

// Publish hands a committed event to subscribers. Nil events are ignored.
func (l *Log) Publish(ev *types.ActivityEvent) {
	if ev == nil || l.pub == nil {
		return
	}
	l.logger.Debug("publishing activity", "id", ev.ID, "type", ev.Type)
	l.pub.Broadcast(*ev)
}

// Recent returns up to n of the newest events, oldest first.
func (l *Log) Recent(ctx context.Context, n int) ([]types.ActivityEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	events, err := l.store.RecentActivity(ctx, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// List returns events matching filter, newest first.
func (l *Log) List(ctx context.Context, filter types.ActivityFilter) ([]types.ActivityEvent, error) {
	return l.store.ListActivity(ctx, filter)
}
