package directory

import (
	"context"
	"sync"

	"call-platform/internal/calls"
)

// Memory is an in-memory directory useful for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	users   map[int64]calls.User
	friends map[[2]int64]struct{}
	groups  map[int64]*memGroup
	events  map[int64]*memEvent
}

type memGroup struct {
	owner   int64
	members map[int64]struct{}
}

type memEvent struct {
	info   eventInfo
	groups []int64
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[int64]calls.User),
		friends: make(map[[2]int64]struct{}),
		groups:  make(map[int64]*memGroup),
		events:  make(map[int64]*memEvent),
	}
}

func (m *Memory) AddUser(u calls.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) AddFriendship(a, b int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.friends[[2]int64{a, b}] = struct{}{}
}

// AddGroup registers a group. The owner is not implicitly a member.
func (m *Memory) AddGroup(id, owner int64, members ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &memGroup{owner: owner, members: make(map[int64]struct{}, len(members))}
	for _, uid := range members {
		g.members[uid] = struct{}{}
	}
	m.groups[id] = g
}

// AddEvent registers an event; linking groups makes it group-restricted.
func (m *Memory) AddEvent(id, creator int64, public bool, linkedGroups ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vis := "PRIVATE"
	if public {
		vis = visibilityPublic
	}
	m.events[id] = &memEvent{
		info:   eventInfo{ID: id, CreatorID: creator, Visibility: vis, Restricted: len(linkedGroups) > 0},
		groups: linkedGroups,
	}
}

func (m *Memory) User(_ context.Context, id int64) (calls.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return calls.User{}, calls.ErrNotFound
	}
	return u, nil
}

func (m *Memory) AreFriends(_ context.Context, a, b int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ab := m.friends[[2]int64{a, b}]
	_, ba := m.friends[[2]int64{b, a}]
	return ab || ba, nil
}

func (m *Memory) GroupExists(_ context.Context, groupID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[groupID]
	return ok, nil
}

func (m *Memory) IsOwner(_ context.Context, groupID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	return ok && g.owner == userID, nil
}

func (m *Memory) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	if !ok {
		return false, nil
	}
	_, member := g.members[userID]
	return member, nil
}

func (m *Memory) Event(_ context.Context, id int64) (calls.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return calls.Event{}, calls.ErrNotFound
	}
	return calls.Event{ID: ev.info.ID, CreatorID: ev.info.CreatorID}, nil
}

func (m *Memory) CanAccess(ctx context.Context, eventID int64, u calls.User) (bool, error) {
	m.mu.RLock()
	ev, ok := m.events[eventID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return canAccessEvent(ctx, ev.info, u, m.memberOfLinkedGroup)
}

func (m *Memory) memberOfLinkedGroup(_ context.Context, eventID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[eventID]
	if !ok {
		return false, nil
	}
	for _, gid := range ev.groups {
		g, ok := m.groups[gid]
		if !ok {
			continue
		}
		if g.owner == userID {
			return true, nil
		}
		if _, member := g.members[userID]; member {
			return true, nil
		}
	}
	return false, nil
}
