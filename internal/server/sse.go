package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// sseStream writes Server-Sent Events frames for the broadcast hub. Each write
// carries its own deadline so a stalled client fails only its own stream.
type sseStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

// newSSEStream sets the event-stream headers and flushes them.
func newSSEStream(w http.ResponseWriter, timeout time.Duration) (*sseStream, error) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	// Lift the server-wide write timeout; writes set their own.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, err
	}
	return &sseStream{w: w, rc: rc, timeout: timeout}, nil
}

// WriteEvent sends one named event.
func (s *sseStream) WriteEvent(event string, data []byte) error {
	return s.write(func() error {
		_, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
		return err
	})
}

// WriteKeepalive sends an SSE comment frame.
func (s *sseStream) WriteKeepalive() error {
	return s.write(func() error {
		_, err := fmt.Fprint(s.w, ": keepalive\n\n")
		return err
	})
}

func (s *sseStream) write(frame func() error) error {
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if err := frame(); err != nil {
		return err
	}
	return s.rc.Flush()
}
