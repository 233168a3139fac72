package calls

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeDirectory struct {
	users   map[int64]User
	friends map[[2]int64]bool
	owners  map[int64]int64
	members map[int64]map[int64]bool
	events  map[int64]Event
	access  map[int64]map[int64]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:   map[int64]User{},
		friends: map[[2]int64]bool{},
		owners:  map[int64]int64{},
		members: map[int64]map[int64]bool{},
		events:  map[int64]Event{},
		access:  map[int64]map[int64]bool{},
	}
}

func (d *fakeDirectory) addUser(id int64, role string) User {
	u := User{ID: id, Name: "user", Role: role}
	d.users[id] = u
	return u
}

func (d *fakeDirectory) befriend(a, b int64) { d.friends[[2]int64{a, b}] = true }

func (d *fakeDirectory) addGroup(id, owner int64, members ...int64) {
	d.owners[id] = owner
	d.members[id] = map[int64]bool{owner: true}
	for _, m := range members {
		d.members[id][m] = true
	}
}

func (d *fakeDirectory) User(_ context.Context, id int64) (User, error) {
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) AreFriends(_ context.Context, a, b int64) (bool, error) {
	return d.friends[[2]int64{a, b}] || d.friends[[2]int64{b, a}], nil
}

func (d *fakeDirectory) GroupExists(_ context.Context, groupID int64) (bool, error) {
	_, ok := d.owners[groupID]
	return ok, nil
}

func (d *fakeDirectory) IsOwner(_ context.Context, groupID, userID int64) (bool, error) {
	owner, ok := d.owners[groupID]
	return ok && owner == userID, nil
}

func (d *fakeDirectory) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	return d.members[groupID][userID], nil
}

func (d *fakeDirectory) Event(_ context.Context, id int64) (Event, error) {
	ev, ok := d.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

func (d *fakeDirectory) CanAccess(_ context.Context, eventID int64, u User) (bool, error) {
	return d.access[eventID][u.ID], nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	incoming  []Session
	summaries []Session
	err       error
}

func (n *fakeNotifier) NotifyIncomingCall(_ context.Context, s Session, _ User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incoming = append(n.incoming, s)
	return n.err
}

func (n *fakeNotifier) NotifyCallSummary(_ context.Context, s Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return n.err
}

type broadcast struct {
	room    string
	payload []byte
}

type fakeRooms struct {
	mu   sync.Mutex
	sent []broadcast
}

func (r *fakeRooms) Broadcast(room string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, broadcast{room: room, payload: payload})
}

func (r *fakeRooms) ends(t *testing.T) []endSignal {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []endSignal
	for _, b := range r.sent {
		var sig endSignal
		if err := json.Unmarshal(b.payload, &sig); err != nil {
			t.Fatalf("decode broadcast: %v", err)
		}
		if sig.Room != b.room {
			t.Fatalf("signal room %q sent to room %q", sig.Room, b.room)
		}
		out = append(out, sig)
	}
	return out
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeStopper struct {
	ft *fakeTimers
	t  *fakeTimer
}

func (s fakeStopper) Stop() bool {
	s.ft.mu.Lock()
	defer s.ft.mu.Unlock()
	if s.t.fired || s.t.stopped {
		return false
	}
	s.t.stopped = true
	return true
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) Stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return fakeStopper{ft: ft, t: t}
}

// fireAll runs every timer that is neither stopped nor fired.
func (ft *fakeTimers) fireAll() {
	ft.mu.Lock()
	var due []*fakeTimer
	for _, t := range ft.timers {
		if !t.fired && !t.stopped {
			t.fired = true
			due = append(due, t)
		}
	}
	ft.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *Service
	store    *MemoryStore
	dir      *fakeDirectory
	notifier *fakeNotifier
	rooms    *fakeRooms
	timers   *fakeTimers
	clock    *manualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    NewMemoryStore(),
		dir:      newFakeDirectory(),
		notifier: &fakeNotifier{},
		rooms:    &fakeRooms{},
		timers:   &fakeTimers{},
		clock:    &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.svc = NewService(
		h.store,
		NewAuthorizer(h.dir, h.dir, h.dir),
		h.dir,
		h.notifier,
		h.rooms,
		Options{
			MissedCallTimeout: 15 * time.Second,
			AfterFunc:         h.timers.afterFunc,
			Clock:             h.clock.Now,
		},
	)
	t.Cleanup(h.svc.Close)
	return h
}
