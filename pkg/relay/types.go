// Package relay defines the shared types and contracts of the notification
// relay: the presence registry, the transport session, and the room emitter.
package relay

// NotificationEvent is the outbound event name carried by every targeted
// delivery. Clients subscribe to it by name.
const NotificationEvent = "notification"

// UserRoom derives the logical room name for a user identity. Every
// registered connection for a user joins exactly this room, and targeted
// deliveries are emitted to it.
func UserRoom(userID string) string {
	return "user:" + userID
}

// DeliveryRequest is one instance of "send this payload to this user now".
// It is transient: it exists only for the duration of a single dispatch
// call and is never persisted.
type DeliveryRequest struct {
	UserID  string
	Event   string
	Payload map[string]any
}
