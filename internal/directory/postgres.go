package directory

import (
	"context"
	"database/sql"
	"errors"

	"call-platform/internal/calls"
)

// Postgres implements the calls collaborator interfaces over the platform
// tables (users, friendships, groups, group_members, events, group_events).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) User(ctx context.Context, id int64) (calls.User, error) {
	const q = `SELECT id, name, role FROM users WHERE id = $1`
	var u calls.User
	if err := p.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Name, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.User{}, calls.ErrNotFound
		}
		return calls.User{}, err
	}
	return u, nil
}

func (p *Postgres) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM friendships
  WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
)`
	return p.exists(ctx, q, a, b)
}

func (p *Postgres) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`
	return p.exists(ctx, q, groupID)
}

func (p *Postgres) IsOwner(ctx context.Context, groupID, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1 AND owner_id = $2)`
	return p.exists(ctx, q, groupID, userID)
}

func (p *Postgres) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	return p.exists(ctx, q, groupID, userID)
}

func (p *Postgres) Event(ctx context.Context, id int64) (calls.Event, error) {
	ev, err := p.eventInfo(ctx, id)
	if err != nil {
		return calls.Event{}, err
	}
	return calls.Event{ID: ev.ID, CreatorID: ev.CreatorID}, nil
}

func (p *Postgres) CanAccess(ctx context.Context, eventID int64, u calls.User) (bool, error) {
	ev, err := p.eventInfo(ctx, eventID)
	if errors.Is(err, calls.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return canAccessEvent(ctx, ev, u, p.memberOfLinkedGroup)
}

func (p *Postgres) eventInfo(ctx context.Context, id int64) (eventInfo, error) {
	const q = `
SELECT e.id, COALESCE(e.created_by_id, 0), e.visibility,
       EXISTS (SELECT 1 FROM group_events ge WHERE ge.event_id = e.id)
FROM events e
WHERE e.id = $1
`
	var ev eventInfo
	if err := p.db.QueryRowContext(ctx, q, id).Scan(&ev.ID, &ev.CreatorID, &ev.Visibility, &ev.Restricted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eventInfo{}, calls.ErrNotFound
		}
		return eventInfo{}, err
	}
	return ev, nil
}

func (p *Postgres) memberOfLinkedGroup(ctx context.Context, eventID, userID int64) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1
  FROM group_events ge
  JOIN groups g ON g.id = ge.group_id
  LEFT JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = $2
  WHERE ge.event_id = $1 AND (g.owner_id = $2 OR gm.user_id IS NOT NULL)
)`
	return p.exists(ctx, q, eventID, userID)
}

func (p *Postgres) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var ok bool
	if err := p.db.QueryRowContext(ctx, q, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
