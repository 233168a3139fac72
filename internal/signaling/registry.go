// Package signaling relays WebRTC signaling messages between the
// participants of a call room over websockets.
package signaling

import (
	"log/slog"
	"sync"

	"call-platform/internal/metrics"
)

// Peer is one signaling connection.
type Peer interface {
	ID() string
	Send(payload []byte) error
}

type member struct {
	peer   Peer
	userID int64
}

// Registry tracks which connections are in which room. A connection is in
// at most one room and an empty room is removed immediately. Sends happen
// outside the lock.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]member
	roomOf map[string]string
	log    *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		rooms:  make(map[string]map[string]member),
		roomOf: make(map[string]string),
		log:    log.With("component", "room_registry"),
	}
}

// Join puts p into room as userID, leaving any previous room, and returns
// the other members present before the join.
func (r *Registry) Join(room string, p Peer, userID int64) []member {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.roomOf[p.ID()]; ok && prev != room {
		r.removeLocked(prev, p.ID())
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]member)
		r.rooms[room] = members
		metrics.RecordRoomCreated()
		r.log.Debug("room created", "room", room)
	}

	others := make([]member, 0, len(members))
	for id, m := range members {
		if id != p.ID() {
			others = append(others, m)
		}
	}
	members[p.ID()] = member{peer: p, userID: userID}
	r.roomOf[p.ID()] = room
	return others
}

// Leave removes the connection from its room. It reports the room it left.
func (r *Registry) Leave(peerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.roomOf[peerID]
	if !ok {
		return "", false
	}
	r.removeLocked(room, peerID)
	return room, true
}

func (r *Registry) removeLocked(room, peerID string) {
	delete(r.roomOf, peerID)
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, peerID)
	if len(members) == 0 {
		delete(r.rooms, room)
		metrics.RecordRoomRemoved()
		r.log.Debug("room removed", "room", room)
	}
}

// RoomOf returns the room the connection joined.
func (r *Registry) RoomOf(peerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.roomOf[peerID]
	return room, ok
}

// Participant returns the user id recorded for the connection at join.
func (r *Registry) Participant(peerID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.roomOf[peerID]
	if !ok {
		return 0, false
	}
	m, ok := r.rooms[room][peerID]
	return m.userID, ok
}

func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) peers(room, except string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]Peer, 0, len(members))
	for id, m := range members {
		if id != except {
			out = append(out, m.peer)
		}
	}
	return out
}

// Broadcast sends payload to every connection in room.
// It implements calls.Broadcaster.
func (r *Registry) Broadcast(room string, payload []byte) {
	r.sendAll(r.peers(room, ""), room, payload)
}

// sendAll delivers to each peer; one failure never stops the others.
func (r *Registry) sendAll(peers []Peer, room string, payload []byte) {
	for _, p := range peers {
		if err := p.Send(payload); err != nil {
			metrics.RecordSendFailure()
			r.log.Warn("send failed", "room", room, "conn_id", p.ID(), "err", err)
		}
	}
}
