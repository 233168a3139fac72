package signaling

import (
	"context"
	"encoding/json"
	"errors"

	"call-platform/internal/calls"
	"call-platform/internal/metrics"
	"call-platform/pkg/logger"
)

// Sessions is the part of calls.Service the relay needs.
type Sessions interface {
	EnsureActive(ctx context.Context, id int64) (calls.Session, error)
	CheckJoin(ctx context.Context, id, userID int64) (calls.Session, error)
}

// Relay handles inbound signaling messages for connected peers.
type Relay struct {
	rooms    *Registry
	sessions Sessions
}

func NewRelay(rooms *Registry, sessions Sessions) *Relay {
	return &Relay{rooms: rooms, sessions: sessions}
}

// HandleMessage processes one inbound message from p. authUserID is the
// authenticated identity of the connection, or 0 when unauthenticated.
// Malformed messages are dropped and the connection stays open.
func (r *Relay) HandleMessage(ctx context.Context, p Peer, authUserID int64, raw []byte) {
	log := logger.From(ctx).With("conn_id", p.ID())

	env, err := parseEnvelope(raw)
	if err != nil {
		metrics.RecordSignalingMessage("", "dropped")
		log.Debug("dropping malformed signaling message", "err", err)
		return
	}
	room := string(env.Room)
	sessionID, ok := calls.ParseRoom(room)
	if !ok {
		metrics.RecordSignalingMessage(env.Type, "rejected")
		r.sendError(ctx, p, room, CodeSessionEnded, "unknown call session")
		return
	}

	if env.Type == TypeJoin {
		r.join(ctx, p, authUserID, env, room, sessionID)
		return
	}

	if _, err := r.sessions.EnsureActive(ctx, sessionID); err != nil {
		metrics.RecordSignalingMessage(env.Type, "rejected")
		r.sendSessionError(ctx, p, room, err)
		return
	}
	if joined, ok := r.rooms.RoomOf(p.ID()); !ok || joined != room {
		metrics.RecordSignalingMessage(env.Type, "dropped")
		log.Warn("dropping message for a room the connection has not joined", "room", room, "type", env.Type)
		return
	}

	r.rooms.sendAll(r.rooms.peers(room, p.ID()), room, raw)
	metrics.RecordSignalingMessage(env.Type, "relayed")
}

func (r *Relay) join(ctx context.Context, p Peer, authUserID int64, env envelope, room string, sessionID int64) {
	log := logger.From(ctx).With("conn_id", p.ID(), "room", room)

	if env.UserID == "" {
		metrics.RecordSignalingMessage(TypeJoin, "rejected")
		r.sendError(ctx, p, room, CodeInvalidMessage, "userId is required")
		return
	}
	userID, ok := env.UserID.int64()
	if !ok {
		metrics.RecordSignalingMessage(TypeJoin, "rejected")
		r.sendError(ctx, p, room, CodeInvalidMessage, "userId is invalid")
		return
	}
	if authUserID != 0 && userID != authUserID {
		metrics.RecordSignalingMessage(TypeJoin, "rejected")
		r.sendError(ctx, p, room, CodeForbidden, "userId does not match the connection")
		return
	}

	if _, err := r.sessions.CheckJoin(ctx, sessionID, userID); err != nil {
		metrics.RecordSignalingMessage(TypeJoin, "rejected")
		r.sendSessionError(ctx, p, room, err)
		return
	}

	others := r.rooms.Join(room, p, userID)
	log.Info("joined call room", "user_id", userID, "participants", len(others)+1)
	metrics.RecordSignalingMessage(TypeJoin, "joined")

	announce, err := json.Marshal(joinMessage{Type: TypeJoin, UserID: userID, Room: room})
	if err != nil {
		log.Error("encode join", "err", err)
		return
	}
	peers := make([]Peer, 0, len(others))
	for _, m := range others {
		peers = append(peers, m.peer)
	}
	r.rooms.sendAll(peers, room, announce)

	// Backfill the newcomer with everyone already present.
	for _, m := range others {
		b, err := json.Marshal(joinMessage{Type: TypeJoin, UserID: m.userID, Room: room})
		if err != nil {
			log.Error("encode join", "err", err)
			continue
		}
		r.rooms.sendAll([]Peer{p}, room, b)
	}
}

// Disconnect removes the connection from its room.
func (r *Relay) Disconnect(ctx context.Context, p Peer) {
	if room, ok := r.rooms.Leave(p.ID()); ok {
		logger.From(ctx).Info("left call room", "conn_id", p.ID(), "room", room)
	}
}

func (r *Relay) sendSessionError(ctx context.Context, p Peer, room string, err error) {
	switch {
	case errors.Is(err, calls.ErrSessionEnded), errors.Is(err, calls.ErrNotFound):
		r.sendError(ctx, p, room, CodeSessionEnded, "call session is not active")
	case errors.Is(err, calls.ErrForbidden):
		r.sendError(ctx, p, room, CodeForbidden, "not allowed to join this call")
	default:
		logger.From(ctx).Error("signaling session check failed", "room", room, "err", err)
		r.sendError(ctx, p, room, CodeInternal, "internal error")
	}
}

func (r *Relay) sendError(ctx context.Context, p Peer, room, code, msg string) {
	b, err := json.Marshal(errorMessage{Type: TypeError, Code: code, Message: msg, Room: room})
	if err != nil {
		return
	}
	if err := p.Send(b); err != nil {
		metrics.RecordSendFailure()
		logger.From(ctx).Warn("send error message failed", "conn_id", p.ID(), "err", err)
	}
}
