// Package directory reads the account, friendship, group and event records
// the call service authorizes against. It never writes them.
package directory

import (
	"context"

	"call-platform/internal/calls"
	"call-platform/internal/rbac"
)

const visibilityPublic = "PUBLIC"

type eventInfo struct {
	ID         int64
	CreatorID  int64
	Visibility string
	// Restricted is true when at least one group is linked to the event.
	Restricted bool
}

// canAccessEvent applies the event visibility rule: public events are open,
// unrestricted events are open to any known user, restricted events to
// staff, the creator and members or owners of a linked group.
func canAccessEvent(ctx context.Context, ev eventInfo, u calls.User, memberOfLinked func(context.Context, int64, int64) (bool, error)) (bool, error) {
	if ev.Visibility == visibilityPublic {
		return true, nil
	}
	if !ev.Restricted {
		return u.ID > 0, nil
	}
	if u.ID <= 0 {
		return false, nil
	}
	if rbac.IsStaff(u.Role) || (ev.CreatorID > 0 && ev.CreatorID == u.ID) {
		return true, nil
	}
	return memberOfLinked(ctx, ev.ID, u.ID)
}
