package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"call-platform/internal/calls"
	"call-platform/internal/directory"
	"call-platform/internal/rbac"
)

type fakePeer struct {
	id   string
	mu   sync.Mutex
	got  [][]byte
	fail bool
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broken pipe")
	}
	p.got = append(p.got, append([]byte(nil), b...))
	return nil
}

func (p *fakePeer) messages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.got...)
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = nil
}

func (p *fakePeer) joins(t *testing.T) []int64 {
	t.Helper()
	var out []int64
	for _, b := range p.messages() {
		var m joinMessage
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m.Type != TypeJoin {
			t.Fatalf("expected join, got %s", b)
		}
		out = append(out, m.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *fakePeer) lastError(t *testing.T) errorMessage {
	t.Helper()
	msgs := p.messages()
	if len(msgs) == 0 {
		t.Fatalf("expected an error message on %s", p.id)
	}
	var m errorMessage
	if err := json.Unmarshal(msgs[len(msgs)-1], &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeError {
		t.Fatalf("expected error message, got %s", msgs[len(msgs)-1])
	}
	return m
}

type relayHarness struct {
	relay *Relay
	rooms *Registry
	svc   *calls.Service
	dir   *directory.Memory
	room  string
	owner calls.User
}

// newRelayHarness builds a group call owned by user 1 with members 2 and 3.
func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()
	dir := directory.NewMemory()
	owner := calls.User{ID: 1, Name: "owner", Role: rbac.RoleUser}
	for _, u := range []calls.User{owner, {ID: 2, Role: rbac.RoleUser}, {ID: 3, Role: rbac.RoleUser}, {ID: 4, Role: rbac.RoleUser}} {
		dir.AddUser(u)
	}
	dir.AddGroup(10, owner.ID, owner.ID, 2, 3)

	rooms := NewRegistry(nil)
	svc := calls.NewService(calls.NewMemoryStore(), calls.NewAuthorizer(dir, dir, dir), dir, nil, rooms, calls.Options{})
	t.Cleanup(svc.Close)

	s, err := svc.Create(context.Background(), calls.GroupContext{GroupID: 10}, calls.ModeConference, owner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return &relayHarness{
		relay: NewRelay(rooms, svc),
		rooms: rooms,
		svc:   svc,
		dir:   dir,
		room:  s.Room(),
		owner: owner,
	}
}

func (h *relayHarness) join(p *fakePeer, userID int64) {
	msg := fmt.Sprintf(`{"type":"join","room":%q,"userId":%d}`, h.room, userID)
	h.relay.HandleMessage(context.Background(), p, 0, []byte(msg))
}

func TestJoin_AnnouncesAndBackfills(t *testing.T) {
	h := newRelayHarness(t)
	a, b, c := newPeer("a"), newPeer("b"), newPeer("c")

	h.join(a, 1)
	if len(a.messages()) != 0 {
		t.Fatalf("first joiner should receive nothing, got %d", len(a.messages()))
	}

	h.join(b, 2)
	if got := a.joins(t); len(got) != 1 || got[0] != 2 {
		t.Fatalf("A expected join{2}, got %v", got)
	}
	if got := b.joins(t); len(got) != 1 || got[0] != 1 {
		t.Fatalf("B expected backfill join{1}, got %v", got)
	}

	a.reset()
	b.reset()
	h.join(c, 3)
	if got := a.joins(t); len(got) != 1 || got[0] != 3 {
		t.Fatalf("A expected join{3}, got %v", got)
	}
	if got := b.joins(t); len(got) != 1 || got[0] != 3 {
		t.Fatalf("B expected join{3}, got %v", got)
	}
	if got := c.joins(t); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("C expected backfill {1,2}, got %v", got)
	}
	if h.rooms.Size(h.room) != 3 {
		t.Fatalf("expected 3 connections in room, got %d", h.rooms.Size(h.room))
	}
}

func TestRelay_ForwardsVerbatimToOthers(t *testing.T) {
	h := newRelayHarness(t)
	a, b, c := newPeer("a"), newPeer("b"), newPeer("c")
	h.join(a, 1)
	h.join(b, 2)
	h.join(c, 3)
	a.reset()
	b.reset()
	c.reset()

	offer := []byte(`{"type":"offer","room":"` + h.room + `","sdp":"v=0\r\n","to":2}`)
	h.relay.HandleMessage(context.Background(), a, 0, offer)

	if len(a.messages()) != 0 {
		t.Fatalf("sender must not receive its own message")
	}
	for _, p := range []*fakePeer{b, c} {
		msgs := p.messages()
		if len(msgs) != 1 || string(msgs[0]) != string(offer) {
			t.Fatalf("%s expected verbatim offer, got %q", p.id, msgs)
		}
	}
}

func TestRelay_DropsMalformed(t *testing.T) {
	h := newRelayHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.join(a, 1)
	h.join(b, 2)
	a.reset()
	b.reset()

	for _, raw := range []string{`not json`, `{"room":"1"}`, `{"type":"offer"}`, `{"type":"offer","room":true}`} {
		h.relay.HandleMessage(context.Background(), a, 0, []byte(raw))
	}
	if len(a.messages()) != 0 || len(b.messages()) != 0 {
		t.Fatalf("malformed messages must be dropped silently")
	}
	if room, ok := h.rooms.RoomOf("a"); !ok || room != h.room {
		t.Fatalf("connection must stay in its room")
	}
}

func TestRelay_DropsMessageForOtherRoom(t *testing.T) {
	h := newRelayHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.join(b, 2)
	b.reset()

	h.relay.HandleMessage(context.Background(), a, 0, []byte(`{"type":"offer","room":"`+h.room+`"}`))
	if len(b.messages()) != 0 {
		t.Fatalf("message from a non-member connection must not be relayed")
	}
}

func TestJoin_Errors(t *testing.T) {
	h := newRelayHarness(t)
	p := newPeer("p")
	ctx := context.Background()

	h.relay.HandleMessage(ctx, p, 0, []byte(`{"type":"join","room":"`+h.room+`"}`))
	if e := p.lastError(t); e.Code != CodeInvalidMessage {
		t.Fatalf("missing userId: expected %s, got %+v", CodeInvalidMessage, e)
	}

	h.join(p, 4)
	if e := p.lastError(t); e.Code != CodeForbidden {
		t.Fatalf("non-member: expected %s, got %+v", CodeForbidden, e)
	}

	h.join(p, 404)
	if e := p.lastError(t); e.Code != CodeForbidden {
		t.Fatalf("unknown user: expected %s, got %+v", CodeForbidden, e)
	}

	h.relay.HandleMessage(ctx, p, 3, []byte(`{"type":"join","room":"`+h.room+`","userId":2}`))
	if e := p.lastError(t); e.Code != CodeForbidden {
		t.Fatalf("identity mismatch: expected %s, got %+v", CodeForbidden, e)
	}

	h.relay.HandleMessage(ctx, p, 0, []byte(`{"type":"join","room":"999","userId":2}`))
	if e := p.lastError(t); e.Code != CodeSessionEnded {
		t.Fatalf("unknown session: expected %s, got %+v", CodeSessionEnded, e)
	}

	if _, ok := h.rooms.RoomOf("p"); ok {
		t.Fatalf("rejected joins must not register the connection")
	}
}

func TestJoin_AcceptsStringUserID(t *testing.T) {
	h := newRelayHarness(t)
	p := newPeer("p")
	h.relay.HandleMessage(context.Background(), p, 2, []byte(`{"type":"join","room":"`+h.room+`","userId":"2"}`))
	if uid, ok := h.rooms.Participant("p"); !ok || uid != 2 {
		t.Fatalf("expected participant 2, got %d %v", uid, ok)
	}
}

func TestEnd_BroadcastsAndBlocksFurtherMessages(t *testing.T) {
	h := newRelayHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.join(a, 1)
	h.join(b, 2)
	a.reset()
	b.reset()

	id, _ := calls.ParseRoom(h.room)
	if _, err := h.svc.End(context.Background(), id, h.owner); err != nil {
		t.Fatalf("end: %v", err)
	}
	for _, p := range []*fakePeer{a, b} {
		msgs := p.messages()
		if len(msgs) != 1 {
			t.Fatalf("%s expected END, got %q", p.id, msgs)
		}
		var sig struct {
			Type string `json:"type"`
			From int64  `json:"from"`
		}
		if err := json.Unmarshal(msgs[0], &sig); err != nil || sig.Type != "END" || sig.From != h.owner.ID {
			t.Fatalf("%s expected END from %d, got %s", p.id, h.owner.ID, msgs[0])
		}
	}

	b.reset()
	h.relay.HandleMessage(context.Background(), b, 0, []byte(`{"type":"candidate","room":"`+h.room+`"}`))
	if e := b.lastError(t); e.Code != CodeSessionEnded {
		t.Fatalf("expected %s after end, got %+v", CodeSessionEnded, e)
	}
	if len(a.messages()) != 1 {
		t.Fatalf("messages after END must not be relayed")
	}
}

func TestDisconnect_RemovesEmptyRoom(t *testing.T) {
	h := newRelayHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.join(a, 1)
	h.join(b, 2)

	h.relay.Disconnect(context.Background(), a)
	if h.rooms.Size(h.room) != 1 {
		t.Fatalf("expected 1 connection left")
	}
	h.relay.Disconnect(context.Background(), b)
	if h.rooms.Rooms() != 0 {
		t.Fatalf("expected empty room removed")
	}
	if _, ok := h.rooms.Participant("b"); ok {
		t.Fatalf("expected participant mapping removed")
	}
	h.relay.Disconnect(context.Background(), b)
}

func TestBroadcast_SendFailureDoesNotStopOthers(t *testing.T) {
	rooms := NewRegistry(nil)
	a, b, c := newPeer("a"), newPeer("b"), newPeer("c")
	b.fail = true
	rooms.Join("7", a, 1)
	rooms.Join("7", b, 2)
	rooms.Join("7", c, 3)

	rooms.Broadcast("7", []byte(`{"type":"END"}`))
	if len(a.messages()) != 1 || len(c.messages()) != 1 {
		t.Fatalf("healthy peers must still receive the broadcast")
	}
}

func TestRegistry_JoinMovesBetweenRooms(t *testing.T) {
	rooms := NewRegistry(nil)
	a := newPeer("a")
	rooms.Join("1", a, 1)
	rooms.Join("2", a, 1)

	if room, _ := rooms.RoomOf("a"); room != "2" {
		t.Fatalf("expected connection in room 2, got %s", room)
	}
	if rooms.Size("1") != 0 || rooms.Rooms() != 1 {
		t.Fatalf("expected old room removed")
	}
	if others := rooms.Join("2", a, 1); len(others) != 0 {
		t.Fatalf("rejoining must be idempotent, got %d others", len(others))
	}
}
