package calls

import (
	"context"
	"errors"

	"call-platform/internal/rbac"
)

// Authorizer decides who may create, join and end calls. Staff
// short-circuits join and end. Collaborator errors propagate unchanged.
type Authorizer struct {
	friends Friendships
	groups  Groups
	events  Events
}

func NewAuthorizer(friends Friendships, groups Groups, events Events) *Authorizer {
	return &Authorizer{friends: friends, groups: groups, events: events}
}

func (a *Authorizer) CanCreate(ctx context.Context, c Context, u User) (bool, error) {
	if c == nil {
		return false, ErrInvalidContext
	}
	return c.visit(createCheck{a: a, ctx: ctx, user: u})
}

func (a *Authorizer) CanJoin(ctx context.Context, s Session, u User) (bool, error) {
	if rbac.IsStaff(u.Role) {
		return true, nil
	}
	c := s.Context()
	if c == nil {
		return false, ErrInvalidContext
	}
	return c.visit(joinCheck{a: a, ctx: ctx, session: s, user: u})
}

func (a *Authorizer) CanEnd(_ context.Context, s Session, u User) (bool, error) {
	if rbac.IsStaff(u.Role) || s.CreatedBy == u.ID {
		return true, nil
	}
	return s.ContextType == ContextPrivate && s.ContextID == u.ID, nil
}

type createCheck struct {
	a    *Authorizer
	ctx  context.Context
	user User
}

func (v createCheck) private(c PrivateContext) (bool, error) {
	return v.a.friends.AreFriends(v.ctx, v.user.ID, c.OtherUserID)
}

func (v createCheck) group(c GroupContext) (bool, error) {
	found, err := v.a.groups.GroupExists(v.ctx, c.GroupID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrInvalidContext
	}
	if !rbac.IsStaff(v.user.Role) {
		owner, err := v.a.groups.IsOwner(v.ctx, c.GroupID, v.user.ID)
		if err != nil || !owner {
			return false, err
		}
	}
	return v.a.groups.IsMember(v.ctx, c.GroupID, v.user.ID)
}

func (v createCheck) event(c EventContext) (bool, error) {
	ev, err := v.a.events.Event(v.ctx, c.EventID)
	if errors.Is(err, ErrNotFound) {
		return false, ErrInvalidContext
	}
	if err != nil {
		return false, err
	}
	return ev.CreatorID == v.user.ID || rbac.IsStaff(v.user.Role), nil
}

type joinCheck struct {
	a       *Authorizer
	ctx     context.Context
	session Session
	user    User
}

func (v joinCheck) private(c PrivateContext) (bool, error) {
	return v.user.ID == v.session.CreatedBy || v.user.ID == c.OtherUserID, nil
}

func (v joinCheck) group(c GroupContext) (bool, error) {
	owner, err := v.a.groups.IsOwner(v.ctx, c.GroupID, v.user.ID)
	if err != nil || owner {
		return owner, err
	}
	return v.a.groups.IsMember(v.ctx, c.GroupID, v.user.ID)
}

func (v joinCheck) event(c EventContext) (bool, error) {
	ev, err := v.a.events.Event(v.ctx, c.EventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if ev.CreatorID == v.user.ID {
		return true, nil
	}
	return v.a.events.CanAccess(v.ctx, c.EventID, v.user)
}
