// Package broadcast fans committed activity events out to live dashboard
// connections.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/outreach-agent/internal/types"
)

const (
	// EventName is the SSE event name used for activity frames.
	EventName = "activity"

	defaultKeepalive   = 25 * time.Second
	defaultCatchUpSize = 5

	// maxPending bounds the live events buffered while a connection is still
	// receiving its catch-up.
	maxPending = 256
)

var (
	// ErrDisconnected is returned by Serve when the connection was dropped after a failed write.
	ErrDisconnected = errors.New("subscriber disconnected")

	errPendingOverflow = errors.New("too many events buffered during catch-up")
)

// Stream is one subscriber's outbound channel. Implementations must bound
// each write so a stalled peer fails instead of blocking.
type Stream interface {
	WriteEvent(event string, data []byte) error
	WriteKeepalive() error
}

// Option customizes Hub construction.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithKeepalive overrides the keepalive interval.
func WithKeepalive(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.keepalive = d
		}
	}
}

// WithCatchUpSize overrides how many recent events a new connection receives.
func WithCatchUpSize(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.catchUp = n
		}
	}
}

// Hub is the registry of live connections. There is one per process.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*conn
	keepalive time.Duration
	catchUp   int
	logger    *slog.Logger
}

type conn struct {
	id     string
	stream Stream

	// mu serializes writes to stream and guards the fields below.
	mu sync.Mutex
	// catchingUp is set until the catch-up frames and anything buffered behind
	// them have been written. Live events are queued in pending meanwhile.
	catchingUp bool
	pending    []frame
	// sent holds the IDs written during catch-up; live copies are skipped.
	sent map[int64]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

type frame struct {
	id   int64
	data []byte
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewHub constructs a hub with defaults.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:     make(map[string]*conn),
		keepalive: defaultKeepalive,
		catchUp:   defaultCatchUpSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// CatchUpSize is the number of recent events sent to a new connection.
func (h *Hub) CatchUpSize() int {
	return h.catchUp
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Subscribe registers stream under id, replacing any previous registration.
func (h *Hub) Subscribe(id string, stream Stream) {
	h.register(&conn{id: id, stream: stream, done: make(chan struct{})})
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	prev := h.conns[c.id]
	h.conns[c.id] = c
	h.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	h.logger.Debug("subscriber registered", "conn_id", c.id)
}

// Unsubscribe removes id. Removing an unknown id is a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	c := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if c != nil {
		c.close()
		h.logger.Debug("subscriber removed", "conn_id", id)
	}
}

// remove drops c only if it is still the registered connection for its id.
func (h *Hub) remove(c *conn, cause error) {
	h.mu.Lock()
	if h.conns[c.id] == c {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("subscriber dropped", "conn_id", c.id, "error", cause)
}

// Broadcast writes ev to every registered connection. A failed write removes
// that connection and never affects the caller or other connections.
func (h *Hub) Broadcast(ev types.ActivityEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal activity event", "id", ev.ID, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if err := h.deliver(c, ev.ID, data); err != nil {
			h.remove(c, err)
		}
	}
}

func (h *Hub) deliver(c *conn, id int64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return nil
	default:
	}
	if _, dup := c.sent[id]; dup {
		return nil
	}
	if c.catchingUp {
		if len(c.pending) >= maxPending {
			return errPendingOverflow
		}
		c.pending = append(c.pending, frame{id: id, data: data})
		return nil
	}
	return c.stream.WriteEvent(EventName, data)
}

// SendCatchUp writes the newest CatchUpSize events of recent, oldest first.
// recent must be ordered oldest first. It returns the IDs written.
func (h *Hub) SendCatchUp(stream Stream, recent []types.ActivityEvent) ([]int64, error) {
	if len(recent) > h.catchUp {
		recent = recent[len(recent)-h.catchUp:]
	}
	written := make([]int64, 0, len(recent))
	for _, ev := range recent {
		data, err := json.Marshal(ev)
		if err != nil {
			return written, err
		}
		if err := stream.WriteEvent(EventName, data); err != nil {
			return written, err
		}
		written = append(written, ev.ID)
	}
	return written, nil
}

// drain writes the events buffered during catch-up, skipping those the
// catch-up covered, and switches c to direct delivery once nothing is left.
// Producers only append while it writes.
func (h *Hub) drain(c *conn, written []int64) error {
	sent := make(map[int64]struct{}, len(written))
	for _, id := range written {
		sent[id] = struct{}{}
	}

	c.mu.Lock()
	c.sent = sent
	for {
		batch := c.pending
		c.pending = nil
		if len(batch) == 0 {
			c.catchingUp = false
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		for _, f := range batch {
			if _, dup := sent[f.id]; dup {
				continue
			}
			if err := c.stream.WriteEvent(EventName, f.data); err != nil {
				return err
			}
		}
		c.mu.Lock()
	}
}

// Serve runs one connection: catch-up, registration, then keepalives until ctx
// ends or a write fails. The connection is unregistered on return.
func (h *Hub) Serve(ctx context.Context, id string, stream Stream, recent []types.ActivityEvent) error {
	c := &conn{id: id, stream: stream, done: make(chan struct{}), catchingUp: true}

	// Registering first queues anything broadcast while catch-up is written.
	h.register(c)
	written, err := h.SendCatchUp(stream, recent)
	if err == nil {
		err = h.drain(c, written)
	}
	if err != nil {
		h.remove(c, err)
		return ErrDisconnected
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			if h.conns[id] == c {
				delete(h.conns, id)
			}
			h.mu.Unlock()
			c.close()
			h.logger.Debug("subscriber closed", "conn_id", id)
			return nil
		case <-c.done:
			return ErrDisconnected
		case <-ticker.C:
			c.mu.Lock()
			err := stream.WriteKeepalive()
			c.mu.Unlock()
			if err != nil {
				h.remove(c, err)
				return ErrDisconnected
			}
		}
	}
}
