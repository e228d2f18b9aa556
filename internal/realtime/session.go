package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// registerEvent is the inbound control message binding a user identity
	// to a connection. Its data is a bare identity string.
	registerEvent = "register"

	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// ErrSessionClosed is returned by Emit once a session has terminated.
var ErrSessionClosed = errors.New("session closed")

// frame is the wire envelope for named events in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundFrame mirrors frame with an unserialized payload.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// session is the package-internal contract shared by the websocket and
// SSE transports. The manager sets the registered identity through it.
type session interface {
	ID() string
	UserID() string
	Emit(event string, data any) error
	Close(reason string) error

	setUserID(userID string)
}

// wsSession is one live websocket connection.
type wsSession struct {
	id       string
	authedID string // subject of the connect token, "" when auth is off
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	userID string

	closeOnce sync.Once
	closed    chan struct{}
	logger    zerolog.Logger
}

func newWSSession(conn *websocket.Conn, authedID string, logger zerolog.Logger) *wsSession {
	id := uuid.NewString()
	return &wsSession{
		id:       id,
		authedID: authedID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
		logger:   logger.With().Str("connection", id).Logger(),
	}
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *wsSession) setUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// Emit queues a named event for the write pump. It never blocks a caller:
// a full send buffer is reported as an error instead.
func (s *wsSession) Emit(event string, data any) error {
	payload, err := json.Marshal(outboundFrame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %q event: %w", event, err)
	}
	select {
	case <-s.closed:
		return ErrSessionClosed
	case s.send <- payload:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", s.id)
	}
}

// Close sends a close frame with the given reason and tears the
// connection down. Safe to call multiple times.
func (s *wsSession) Close(reason string) error {
	s.closeOnce.Do(func() {
		close(s.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		if err := s.conn.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("error closing connection")
		}
	})
	return nil
}

// writePump serializes all writes to the connection and drives the
// heartbeat. One pump per session; gorilla permits a single writer.
func (s *wsSession) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug().Err(err).Msg("Write failed; closing session.")
				_ = s.Close("")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.Close("")
				return
			}
		}
	}
}

// readPump consumes inbound frames until the connection drops. Any read
// activity, including pongs, extends the inactivity deadline; a silent
// connection is disconnected once the timeout elapses.
func (s *wsSession) readPump(cm *ConnectionManager, idleTimeout time.Duration) {
	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug().Err(err).Msg("Ignoring malformed frame.")
			continue
		}
		switch f.Event {
		case registerEvent:
			var userID string
			if err := json.Unmarshal(f.Data, &userID); err != nil {
				s.logger.Warn().Err(err).Msg("Ignoring register with non-string identity.")
				continue
			}
			if s.authedID != "" && s.authedID != userID {
				s.logger.Warn().Str("user", userID).Str("subject", s.authedID).
					Msg("Ignoring register that does not match the authenticated subject.")
				continue
			}
			cm.Register(s, userID)
		default:
			s.logger.Debug().Str("event", f.Event).Msg("Ignoring unknown client event.")
		}
	}
}
