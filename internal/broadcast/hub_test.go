package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu         sync.Mutex
	ids        []int64
	keepalives int
	fail       error
	writes     chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{writes: make(chan struct{}, 64)}
}

func (s *fakeStream) WriteEvent(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if event != EventName {
		return fmt.Errorf("unexpected event name %q", event)
	}
	var ev struct {
		ID int64 `json:"id,string"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	s.ids = append(s.ids, ev.ID)
	select {
	case s.writes <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeStream) WriteKeepalive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.keepalives++
	return nil
}

func (s *fakeStream) received() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *fakeStream) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func ev(id int64) types.ActivityEvent {
	return types.ActivityEvent{
		ID:          id,
		Type:        types.ActivityManualAction,
		Detail:      "x",
		Status:      types.StatusCompleted,
		TriggeredBy: types.ActorManual,
		CreatedAt:   time.Unix(id, 0).UTC(),
	}
}

func TestBroadcast_FailingConnectionIsRemoved(t *testing.T) {
	h := NewHub()
	a, b, bad := newFakeStream(), newFakeStream(), newFakeStream()
	bad.setFail(errors.New("broken pipe"))

	h.Subscribe("a", a)
	h.Subscribe("b", b)
	h.Subscribe("bad", bad)
	require.Equal(t, 3, h.Len())

	h.Broadcast(ev(1))

	assert.Equal(t, []int64{1}, a.received())
	assert.Equal(t, []int64{1}, b.received())
	assert.Equal(t, 2, h.Len())

	h.Broadcast(ev(2))
	assert.Equal(t, []int64{1, 2}, a.received())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	h := NewHub()
	s := newFakeStream()
	h.Subscribe("a", s)
	h.Unsubscribe("a")
	h.Unsubscribe("a")
	h.Unsubscribe("never")
	assert.Zero(t, h.Len())

	h.Broadcast(ev(1))
	assert.Empty(t, s.received())
}

func TestSendCatchUp_OldestFirstBounded(t *testing.T) {
	h := NewHub()
	s := newFakeStream()
	recent := []types.ActivityEvent{ev(1), ev(2), ev(3), ev(4), ev(5), ev(6), ev(7)}

	written, err := h.SendCatchUp(s, recent)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5, 6, 7}, written)
	assert.Equal(t, []int64{3, 4, 5, 6, 7}, s.received())
}

func TestServe_CatchUpThenLiveWithoutDuplicates(t *testing.T) {
	h := NewHub(WithKeepalive(time.Hour))
	s := newFakeStream()
	ctx, cancel := context.WithCancel(context.Background())

	recent := []types.ActivityEvent{ev(10), ev(11), ev(12), ev(13), ev(14)}
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, "c1", s, recent) }()

	require.Eventually(t, func() bool { return h.Len() == 1 && len(s.received()) == 5 }, time.Second, 5*time.Millisecond)

	// 14 was already sent during catch-up.
	h.Broadcast(ev(14))
	h.Broadcast(ev(15))
	h.Broadcast(ev(16))

	require.Eventually(t, func() bool { return len(s.received()) == 7 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{10, 11, 12, 13, 14, 15, 16}, s.received())

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, h.Len())
}

func TestServe_DeliversOlderIDCommittedAfterCatchUp(t *testing.T) {
	h := NewHub(WithKeepalive(time.Hour))
	s := newFakeStream()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, "c1", s, []types.ActivityEvent{ev(20)}) }()
	require.Eventually(t, func() bool { return h.Len() == 1 && len(s.received()) == 1 }, time.Second, 5*time.Millisecond)

	// IDs are stamped before commit, so 15 can be published after 20.
	h.Broadcast(ev(15))
	h.Broadcast(ev(21))
	h.Broadcast(ev(20))

	require.Eventually(t, func() bool { return len(s.received()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{20, 15, 21}, s.received())

	cancel()
	require.NoError(t, <-done)
}

// gatedStream blocks its first write until release is closed.
type gatedStream struct {
	*fakeStream
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStream) WriteEvent(event string, data []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.fakeStream.WriteEvent(event, data)
}

func TestServe_SlowCatchUpDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub(WithKeepalive(time.Hour))
	s := &gatedStream{fakeStream: newFakeStream(), entered: make(chan struct{}), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, "c1", s, []types.ActivityEvent{ev(1), ev(2)}) }()
	<-s.entered

	broadcasted := make(chan struct{})
	go func() {
		h.Broadcast(ev(2))
		h.Broadcast(ev(3))
		close(broadcasted)
	}()
	select {
	case <-broadcasted:
	case <-time.After(time.Second):
		t.Fatal("Broadcast waited on a connection still writing catch-up")
	}

	close(s.release)
	require.Eventually(t, func() bool { return len(s.received()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, s.received())

	cancel()
	require.NoError(t, <-done)
}

func TestServe_KeepaliveFailureRemovesConnection(t *testing.T) {
	h := NewHub(WithKeepalive(10 * time.Millisecond))
	s := newFakeStream()

	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), "c1", s, nil) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.keepalives >= 2
	}, time.Second, 5*time.Millisecond)

	s.setFail(errors.New("timeout"))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after keepalive failure")
	}
	assert.Zero(t, h.Len())
}

func TestServe_BroadcastFailureEndsServe(t *testing.T) {
	h := NewHub(WithKeepalive(time.Hour))
	s := newFakeStream()

	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), "c1", s, nil) }()
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	s.setFail(errors.New("reset"))
	h.Broadcast(ev(1))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after write failure")
	}
}

func TestServe_CatchUpFailure(t *testing.T) {
	h := NewHub()
	s := newFakeStream()
	s.setFail(errors.New("closed"))

	err := h.Serve(context.Background(), "c1", s, []types.ActivityEvent{ev(1)})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Zero(t, h.Len())
}

func TestBroadcast_Concurrent(t *testing.T) {
	h := NewHub()
	streams := make([]*fakeStream, 10)
	for i := range streams {
		streams[i] = newFakeStream()
		h.Subscribe(fmt.Sprintf("c%d", i), streams[i])
	}

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			h.Broadcast(ev(id))
		}(int64(i))
	}
	// Churn the registry while broadcasting.
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("churn%d", n)
			h.Subscribe(id, newFakeStream())
			h.Unsubscribe(id)
		}(i)
	}
	wg.Wait()

	for _, s := range streams {
		assert.Len(t, s.received(), 50)
	}
}

func TestSubscribe_ReplacesExistingID(t *testing.T) {
	h := NewHub()
	old, replacement := newFakeStream(), newFakeStream()
	h.Subscribe("same", old)
	h.Subscribe("same", replacement)
	h.Broadcast(ev(1))

	assert.Empty(t, old.received())
	assert.Equal(t, []int64{1}, replacement.received())
	assert.Equal(t, 1, h.Len())
}
