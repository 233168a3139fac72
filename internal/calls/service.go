package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"call-platform/internal/metrics"
	"call-platform/pkg/logger"
)

// Service owns the call session lifecycle: create, accept, end and the
// missed-call timeout. Request methods run synchronously; only the caller
// whose store update flipped a session to ended notifies and broadcasts.
type Service struct {
	store    Store
	authz    *Authorizer
	users    UserDirectory
	notifier Notifier
	rooms    Broadcaster
	timer    *MissedCallTimer

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type Options struct {
	MissedCallTimeout time.Duration
	AfterFunc         AfterFunc
	Clock             func() time.Time
	Logger            *slog.Logger
}

func NewService(store Store, authz *Authorizer, users UserDirectory, notifier Notifier, rooms Broadcaster, opts Options) *Service {
	if opts.MissedCallTimeout <= 0 {
		opts.MissedCallTimeout = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Service{
		store:    store,
		authz:    authz,
		users:    users,
		notifier: notifier,
		rooms:    rooms,
		clock:    opts.Clock,
	}
	s.timer = newMissedCallTimer(
		opts.MissedCallTimeout,
		opts.AfterFunc,
		s.expire,
		opts.Logger.With("component", "missed_call_timer"),
	)
	return s
}

// RoomFor is the signaling room name of a session.
func RoomFor(sessionID int64) string { return strconv.FormatInt(sessionID, 10) }

// ParseRoom is the inverse of RoomFor.
func ParseRoom(room string) (int64, bool) {
	id, err := strconv.ParseInt(room, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) Create(ctx context.Context, c Context, mode Mode, requester User) (Session, error) {
	if c == nil || c.ID() <= 0 || !c.Type().Valid() {
		return Session{}, ErrInvalidContext
	}
	if mode == "" {
		mode = ModeNormal
	}
	if !mode.Valid() {
		return Session{}, ErrInvalidContext
	}
	if c.Type() == ContextPrivate && c.ID() == requester.ID {
		return Session{}, ErrInvalidContext
	}

	ok, err := s.authz.CanCreate(ctx, c, requester)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrForbidden
	}

	if err := s.supersede(ctx, c, requester); err != nil {
		return Session{}, err
	}

	sess, err := s.store.Create(ctx, Session{
		ContextType: c.Type(),
		ContextID:   c.ID(),
		Mode:        mode,
		CreatedBy:   requester.ID,
		Active:      true,
		CreatedAt:   s.clock().UTC(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("create call session: %w", err)
	}
	metrics.RecordCallCreated(string(sess.ContextType))
	logger.From(ctx).Info("call created",
		"session_id", sess.ID,
		"context_type", sess.ContextType,
		"context_id", sess.ContextID,
		"created_by", sess.CreatedBy,
	)

	if sess.ContextType == ContextPrivate {
		if s.notifier != nil {
			if err := s.notifier.NotifyIncomingCall(ctx, sess, requester); err != nil {
				metrics.RecordNotificationFailure("incoming_call")
				logger.From(ctx).Warn("incoming call notification failed", "session_id", sess.ID, "err", err)
			}
		}
		s.timer.Arm(sess.ID)
	}
	return sess, nil
}

// supersede ends every session that would otherwise stay active next to
// the new one. For PRIVATE calls that includes the reverse direction of
// the same pair.
func (s *Service) supersede(ctx context.Context, c Context, requester User) error {
	existing, err := s.store.ListActive(ctx, c.Type(), c.ID())
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if c.Type() == ContextPrivate {
		pair, err := s.store.ListActivePair(ctx, requester.ID, c.ID())
		if err != nil {
			return fmt.Errorf("list active private sessions: %w", err)
		}
		existing = append(existing, pair...)
	}

	seen := make(map[int64]struct{}, len(existing))
	for _, old := range existing {
		if _, dup := seen[old.ID]; dup {
			continue
		}
		seen[old.ID] = struct{}{}

		_, changed, err := s.finalize(ctx, old.ID)
		if err != nil {
			return fmt.Errorf("supersede session %d: %w", old.ID, err)
		}
		if changed {
			metrics.RecordCallSuperseded()
			logger.From(ctx).Info("call superseded", "session_id", old.ID)
		}
	}
	return nil
}

// FindActive returns the active session for c. PRIVATE lookups match
// either direction between requester and the other user.
func (s *Service) FindActive(ctx context.Context, c Context, requester User) (Session, error) {
	if c == nil || c.ID() <= 0 || !c.Type().Valid() {
		return Session{}, ErrInvalidContext
	}

	var (
		found []Session
		err   error
	)
	if c.Type() == ContextPrivate {
		found, err = s.store.ListActivePair(ctx, requester.ID, c.ID())
	} else {
		found, err = s.store.ListActive(ctx, c.Type(), c.ID())
	}
	if err != nil {
		return Session{}, err
	}
	if len(found) == 0 {
		return Session{}, ErrNotFound
	}

	sess := found[0]
	ok, err := s.authz.CanJoin(ctx, sess, requester)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrForbidden
	}
	return sess, nil
}

// Accept marks the session answered. Repeated calls and calls on an ended
// session return it unchanged.
func (s *Service) Accept(ctx context.Context, id int64, user User) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	ok, err := s.authz.CanJoin(ctx, sess, user)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrForbidden
	}

	sess, changed, err := s.store.Accept(ctx, id, s.clock())
	if err != nil {
		return Session{}, fmt.Errorf("accept call session: %w", err)
	}
	if changed {
		logger.From(ctx).Info("call accepted", "session_id", id, "user_id", user.ID)
	}
	return sess, nil
}

// End finalizes the session. Ending an ended session is a no-op.
func (s *Service) End(ctx context.Context, id int64, requester User) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.Active {
		return sess, nil
	}
	ok, err := s.authz.CanEnd(ctx, sess, requester)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrForbidden
	}
	sess, _, err = s.finalize(ctx, id)
	return sess, err
}

// EndForContext ends every active session of a context, e.g. when an
// event starts or finishes. It returns the sessions it ended.
func (s *Service) EndForContext(ctx context.Context, t ContextType, contextID int64) ([]Session, error) {
	if !t.Valid() || contextID <= 0 {
		return nil, ErrInvalidContext
	}
	active, err := s.store.ListActive(ctx, t, contextID)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(active))
	for _, sess := range active {
		ended, changed, err := s.finalize(ctx, sess.ID)
		if err != nil {
			return out, err
		}
		if changed {
			out = append(out, ended)
		}
	}
	return out, nil
}

// EnsureActive returns the session when it exists and is active, and
// ErrSessionEnded otherwise.
func (s *Service) EnsureActive(ctx context.Context, id int64) (Session, error) {
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrSessionEnded
	}
	if err != nil {
		return Session{}, err
	}
	if !sess.Active {
		return Session{}, ErrSessionEnded
	}
	return sess, nil
}

// CheckJoin validates that userID may join the active session id.
// Unknown users are forbidden.
func (s *Service) CheckJoin(ctx context.Context, id, userID int64) (Session, error) {
	sess, err := s.EnsureActive(ctx, id)
	if err != nil {
		return Session{}, err
	}
	u, err := s.users.User(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrForbidden
	}
	if err != nil {
		return Session{}, err
	}
	ok, err := s.authz.CanJoin(ctx, sess, u)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrForbidden
	}
	return sess, nil
}

// Close stops pending missed-call checks and waits for one in progress.
// Call it before closing the store.
func (s *Service) Close() {
	s.timer.Close()
}

func (s *Service) finalize(ctx context.Context, id int64) (Session, bool, error) {
	sess, changed, err := s.store.Finish(ctx, id, s.clock())
	if err != nil {
		return Session{}, false, fmt.Errorf("finish call session: %w", err)
	}
	if changed {
		s.afterEnd(ctx, sess)
	}
	return sess, changed, nil
}

// expire is the missed-call check run by the timer.
func (s *Service) expire(ctx context.Context, id int64) {
	sess, changed, err := s.store.Expire(ctx, id, s.clock())
	if err != nil {
		logger.From(ctx).Error("missed call check failed", "session_id", id, "err", err)
		return
	}
	if !changed {
		logger.From(ctx).Debug("missed call check: nothing to do", "session_id", id, "active", sess.Active)
		return
	}
	s.afterEnd(ctx, sess)
}

type endSignal struct {
	Type string `json:"type"`
	Room string `json:"room"`
	From int64  `json:"from"`
}

// afterEnd runs once per ended session. It must not depend on the
// lifetime of the request that ended the call.
func (s *Service) afterEnd(ctx context.Context, sess Session) {
	ctx = logger.Detached(ctx)

	duration := 0
	if sess.DurationSeconds != nil {
		duration = *sess.DurationSeconds
	}
	metrics.RecordCallEnded(string(sess.ContextType), sess.Missed, duration)
	logger.From(ctx).Info("call ended",
		"session_id", sess.ID,
		"missed", sess.Missed,
		"duration_seconds", duration,
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyCallSummary(ctx, sess); err != nil {
			metrics.RecordNotificationFailure("call_summary")
			logger.From(ctx).Warn("call summary notification failed", "session_id", sess.ID, "err", err)
		}
	}

	if s.rooms != nil {
		payload, err := json.Marshal(endSignal{Type: "END", Room: sess.Room(), From: sess.CreatedBy})
		if err != nil {
			logger.From(ctx).Error("encode end signal", "session_id", sess.ID, "err", err)
			return
		}
		s.rooms.Broadcast(sess.Room(), payload)
	}
}
