package relay

import "context"

// Session is one live transport connection. Implementations are owned by
// the transport layer; a session is created on connect and is never reused
// after it closes.
type Session interface {
	// ID returns the opaque, transport-assigned connection identifier.
	ID() string
	// UserID returns the identity this session registered as, or "" while
	// the session is connected but unregistered.
	UserID() string
	// Emit sends a named event with a JSON-serializable payload to the
	// client on the other end of this session.
	Emit(event string, data any) error
	// Close terminates the session. The reason is sent to the client where
	// the underlying protocol supports it.
	Close(reason string) error
}

// Registry maps a user identity to its currently-active connection id.
// The mapping is last-writer-wins: at most one entry per user exists at
// any time, and a newer registration overwrites an older one.
type Registry interface {
	// Set installs userID -> connID and returns the connection id the new
	// registration evicted, or "" if the user had no prior entry.
	Set(ctx context.Context, userID, connID string) (evicted string, err error)
	// Remove deletes the entry for userID only if it still points at
	// connID. It reports whether an entry was removed, so a stale
	// disconnect never evicts a newer registration.
	Remove(ctx context.Context, userID, connID string) (removed bool, err error)
	// Lookup returns the active connection id for userID, if any.
	Lookup(ctx context.Context, userID string) (connID string, ok bool, err error)
	// Users returns a snapshot of all registered user identities. The
	// snapshot is consistent only as of call time.
	Users(ctx context.Context) ([]string, error)
	Close() error
}

// Emitter delivers named events to logical rooms. The transport layer's
// connection manager is the production implementation.
type Emitter interface {
	// EmitToUser emits an event to every session in the user's logical
	// room and returns the number of sessions it reached.
	EmitToUser(userID, event string, data any) (int, error)
	// Broadcast emits an event to every connected session, registered or
	// not, and returns the number of sessions it reached.
	Broadcast(event string, data any) (int, error)
}
