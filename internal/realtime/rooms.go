package realtime

import (
	"errors"
	"sync"

	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
)

// roomSet tracks which sessions have joined which logical rooms. Emission
// to one room never reaches another.
type roomSet struct {
	mu    sync.RWMutex
	rooms map[string]map[string]relay.Session // room -> connID -> session
}

func newRoomSet() *roomSet {
	return &roomSet{rooms: make(map[string]map[string]relay.Session)}
}

// Join adds a session to a room, creating the room implicitly.
func (rs *roomSet) Join(room string, sess relay.Session) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	members, ok := rs.rooms[room]
	if !ok {
		members = make(map[string]relay.Session)
		rs.rooms[room] = members
	}
	members[sess.ID()] = sess
}

// Leave removes a connection from a room, deleting the room once empty.
func (rs *roomSet) Leave(room, connID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	members, ok := rs.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(rs.rooms, room)
	}
}

// Emit sends a named event to every session in the room. It returns the
// number of sessions the event reached and the combined error of any
// failed sends.
func (rs *roomSet) Emit(room, event string, data any) (int, error) {
	rs.mu.RLock()
	members := make([]relay.Session, 0, len(rs.rooms[room]))
	for _, sess := range rs.rooms[room] {
		members = append(members, sess)
	}
	rs.mu.RUnlock()

	var (
		delivered int
		errs      []error
	)
	for _, sess := range members {
		if err := sess.Emit(event, data); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}
