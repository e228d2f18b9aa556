package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sseSession is the fallback polling-mode transport: a Server-Sent Events
// stream for clients that cannot hold a websocket. SSE is one-directional,
// so the identity arrives as a query parameter at connect time instead of
// a register frame.
type sseSession struct {
	id string

	mu      sync.Mutex
	userID  string
	w       http.ResponseWriter
	flusher http.Flusher

	closeOnce sync.Once
	closed    chan struct{}
	logger    zerolog.Logger
}

func newSSESession(w http.ResponseWriter, flusher http.Flusher, logger zerolog.Logger) *sseSession {
	id := uuid.NewString()
	return &sseSession{
		id:      id,
		w:       w,
		flusher: flusher,
		closed:  make(chan struct{}),
		logger:  logger.With().Str("connection", id).Logger(),
	}
}

func (s *sseSession) ID() string { return s.id }

func (s *sseSession) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *sseSession) setUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// Emit writes one SSE event frame and flushes it to the client.
func (s *sseSession) Emit(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %q event: %w", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write sse event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close ends the stream. SSE has no close frame; the handler unblocks and
// finishes the response.
func (s *sseSession) Close(_ string) error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// keepAlive emits comment lines on the heartbeat interval so intermediaries
// do not reap an idle stream. It blocks until the session or request ends.
func (s *sseSession) keepAlive(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			_, err := fmt.Fprint(s.w, ": keep-alive\n\n")
			if err == nil {
				s.flusher.Flush()
			}
			s.mu.Unlock()
			if err != nil {
				s.logger.Debug().Err(err).Msg("Keep-alive failed; closing stream.")
				_ = s.Close("")
				return
			}
		}
	}
}
