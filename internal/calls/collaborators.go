package calls

import "context"

// User is the slice of an account the call core needs.
type User struct {
	ID   int64
	Name string
	Role string
}

type Event struct {
	ID        int64
	CreatorID int64
}

// UserDirectory returns ErrNotFound for unknown ids.
type UserDirectory interface {
	User(ctx context.Context, id int64) (User, error)
}

type Friendships interface {
	// AreFriends is true when a friendship exists in either direction.
	AreFriends(ctx context.Context, a, b int64) (bool, error)
}

type Groups interface {
	GroupExists(ctx context.Context, groupID int64) (bool, error)
	IsOwner(ctx context.Context, groupID, userID int64) (bool, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}

type Events interface {
	// Event returns ErrNotFound for unknown ids.
	Event(ctx context.Context, id int64) (Event, error)
	CanAccess(ctx context.Context, eventID int64, u User) (bool, error)
}

// Notifier delivers out-of-band messages. Failures are logged by the caller
// and never block a state change.
type Notifier interface {
	NotifyIncomingCall(ctx context.Context, s Session, caller User) error
	NotifyCallSummary(ctx context.Context, s Session) error
}

// Broadcaster pushes a payload to every connection in a room.
type Broadcaster interface {
	Broadcast(room string, payload []byte)
}
