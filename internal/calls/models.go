package calls

import (
	"errors"
	"time"
)

// Session is one call attempt within a private pair, a group, or an event.
//
// Invariants:
// - At most one active session per (ContextType, ContextID); enforced by
//   superseding on create, not by a unique constraint.
// - AcceptedAt and EndedAt are set at most once.
// - Once ended: Missed == (AcceptedAt == nil), DurationSeconds == 0 when missed.
// - Sessions are never deleted.
type Session struct {
	ID          int64       `json:"id" db:"id"`
	ContextType ContextType `json:"contextType" db:"context_type"`

	// ContextID is the addressed user for PRIVATE, the group for GROUP
	// and the event for EVENT.
	ContextID int64 `json:"contextId" db:"context_id"`
	Mode      Mode  `json:"mode" db:"mode"`
	CreatedBy int64 `json:"createdBy" db:"created_by"`
	Active    bool  `json:"active" db:"active"`

	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty" db:"accepted_at"`
	EndedAt    *time.Time `json:"endedAt,omitempty" db:"ended_at"`

	DurationSeconds *int `json:"durationSeconds,omitempty" db:"duration_seconds"`
	Missed          bool `json:"missed" db:"missed"`
}

type ContextType string

const (
	ContextPrivate ContextType = "PRIVATE"
	ContextGroup   ContextType = "GROUP"
	ContextEvent   ContextType = "EVENT"
)

func (t ContextType) Valid() bool {
	switch t {
	case ContextPrivate, ContextGroup, ContextEvent:
		return true
	default:
		return false
	}
}

type Mode string

const (
	ModeNormal     Mode = "NORMAL"
	ModeConference Mode = "CONFERENCE"
)

func (m Mode) Valid() bool { return m == ModeNormal || m == ModeConference }

var (
	ErrNotFound       = errors.New("call session not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidContext = errors.New("invalid call context")
	ErrSessionEnded   = errors.New("call session ended")
)

// finish applies the terminal transition. It reports false when the
// session was already ended.
func (s *Session) finish(now time.Time) bool {
	if !s.Active {
		return false
	}
	ended := now.UTC()
	s.Active = false
	s.EndedAt = &ended
	s.Missed = s.AcceptedAt == nil

	d := 0
	if !s.Missed {
		if secs := int(ended.Sub(*s.AcceptedAt) / time.Second); secs > 0 {
			d = secs
		}
	}
	s.DurationSeconds = &d
	return true
}

// expire ends a session that was never accepted.
func (s *Session) expire(now time.Time) bool {
	if s.AcceptedAt != nil {
		return false
	}
	return s.finish(now)
}

// accept sets AcceptedAt once on an active session.
func (s *Session) accept(now time.Time) bool {
	if !s.Active || s.AcceptedAt != nil {
		return false
	}
	at := now.UTC()
	s.AcceptedAt = &at
	return true
}

// Context addresses who a call is for. The set of kinds is closed; adding
// one means adding a method to contextVisitor and every check.
type Context interface {
	Type() ContextType
	ID() int64
	visit(v contextVisitor) (bool, error)
}

type contextVisitor interface {
	private(c PrivateContext) (bool, error)
	group(c GroupContext) (bool, error)
	event(c EventContext) (bool, error)
}

type PrivateContext struct{ OtherUserID int64 }

func (c PrivateContext) Type() ContextType                    { return ContextPrivate }
func (c PrivateContext) ID() int64                            { return c.OtherUserID }
func (c PrivateContext) visit(v contextVisitor) (bool, error) { return v.private(c) }

type GroupContext struct{ GroupID int64 }

func (c GroupContext) Type() ContextType                    { return ContextGroup }
func (c GroupContext) ID() int64                            { return c.GroupID }
func (c GroupContext) visit(v contextVisitor) (bool, error) { return v.group(c) }

type EventContext struct{ EventID int64 }

func (c EventContext) Type() ContextType                    { return ContextEvent }
func (c EventContext) ID() int64                            { return c.EventID }
func (c EventContext) visit(v contextVisitor) (bool, error) { return v.event(c) }

// NewContext builds a Context from its wire form.
func NewContext(t ContextType, id int64) (Context, error) {
	if id <= 0 {
		return nil, ErrInvalidContext
	}
	switch t {
	case ContextPrivate:
		return PrivateContext{OtherUserID: id}, nil
	case ContextGroup:
		return GroupContext{GroupID: id}, nil
	case ContextEvent:
		return EventContext{EventID: id}, nil
	default:
		return nil, ErrInvalidContext
	}
}

// Context returns the context the session was created for.
func (s Session) Context() Context {
	c, _ := NewContext(s.ContextType, s.ContextID)
	return c
}

// Room is the signaling room name for the session.
func (s Session) Room() string { return RoomFor(s.ID) }
