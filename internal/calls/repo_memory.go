package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

func (r *MemoryStore) Create(_ context.Context, s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	s.Active = true
	r.sessions[s.ID] = s
	return s, nil
}

func (r *MemoryStore) Get(_ context.Context, id int64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryStore) ListActive(_ context.Context, t ContextType, contextID int64) ([]Session, error) {
	return r.filter(func(s Session) bool {
		return s.ContextType == t && s.ContextID == contextID
	}), nil
}

func (r *MemoryStore) ListActivePair(_ context.Context, a, b int64) ([]Session, error) {
	return r.filter(func(s Session) bool {
		if s.ContextType != ContextPrivate {
			return false
		}
		return (s.CreatedBy == a && s.ContextID == b) || (s.CreatedBy == b && s.ContextID == a)
	}), nil
}

// ListCreated returns sessions created in [from, to), newest first. An
// empty t matches every context type.
func (r *MemoryStore) ListCreated(_ context.Context, from, to time.Time, t ContextType) ([]Session, error) {
	return r.collect(func(s Session) bool {
		if s.CreatedAt.Before(from) || !s.CreatedAt.Before(to) {
			return false
		}
		return t == "" || s.ContextType == t
	}), nil
}

func (r *MemoryStore) filter(match func(Session) bool) []Session {
	return r.collect(func(s Session) bool { return s.Active && match(s) })
}

func (r *MemoryStore) collect(match func(Session) bool) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *MemoryStore) Accept(_ context.Context, id int64, now time.Time) (Session, bool, error) {
	return r.mutate(id, func(s *Session) bool { return s.accept(now) })
}

func (r *MemoryStore) Finish(_ context.Context, id int64, now time.Time) (Session, bool, error) {
	return r.mutate(id, func(s *Session) bool { return s.finish(now) })
}

func (r *MemoryStore) Expire(_ context.Context, id int64, now time.Time) (Session, bool, error) {
	return r.mutate(id, func(s *Session) bool { return s.expire(now) })
}

func (r *MemoryStore) mutate(id int64, fn func(*Session) bool) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false, ErrNotFound
	}
	if !fn(&s) {
		return s, false, nil
	}
	r.sessions[id] = s
	return s, true, nil
}
