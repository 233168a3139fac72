package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"call-platform/internal/calls"

	"github.com/google/uuid"
)

// Service turns call lifecycle changes into user notifications.
// It implements calls.Notifier.
type Service struct {
	pub   Publisher
	users calls.UserDirectory
	clock func() time.Time
}

func NewService(pub Publisher, users calls.UserDirectory) *Service {
	return &Service{pub: pub, users: users, clock: time.Now}
}

var _ calls.Notifier = (*Service)(nil)

// NotifyIncomingCall tells the addressed party of a PRIVATE call that
// caller is ringing. Unknown recipients are skipped.
func (s *Service) NotifyIncomingCall(ctx context.Context, sess calls.Session, caller calls.User) error {
	if sess.ContextType != calls.ContextPrivate {
		return nil
	}
	if _, err := s.users.User(ctx, sess.ContextID); err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			return nil
		}
		return err
	}

	return s.publish(ctx, Message{
		Type:        MessageIncomingCall,
		SessionID:   sess.ID,
		SenderID:    caller.ID,
		RecipientID: sess.ContextID,
		Title:       "Incoming call",
		Content:     caller.Name + " is calling",
	}, NotificationsChannel(sess.ContextID))
}

// NotifyCallSummary sends the missed or completed summary of an ended
// PRIVATE call to both parties.
func (s *Service) NotifyCallSummary(ctx context.Context, sess calls.Session) error {
	if sess.ContextType != calls.ContextPrivate || sess.Active {
		return nil
	}
	if _, err := s.users.User(ctx, sess.ContextID); err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			return nil
		}
		return err
	}

	m := Message{
		SessionID:   sess.ID,
		SenderID:    sess.CreatedBy,
		RecipientID: sess.ContextID,
	}
	if sess.Missed {
		m.Type = MessageCallMissed
		m.Content = "Missed call"
	} else {
		d := 0
		if sess.DurationSeconds != nil {
			d = *sess.DurationSeconds
		}
		m.Type = MessageCallCompleted
		m.Content = "Call ended (" + FormatDuration(d) + ")"
	}
	return s.publish(ctx, m, PrivateChannel(sess.CreatedBy), PrivateChannel(sess.ContextID))
}

func (s *Service) publish(ctx context.Context, m Message, channels ...string) error {
	m.ID = uuid.NewString()
	m.CreatedAt = s.clock().UTC()
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type, err)
	}

	var errs []error
	for _, ch := range channels {
		if err := s.pub.Publish(ctx, ch, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish %s to %s: %w", m.Type, ch, err))
		}
	}
	return errors.Join(errs...)
}

// FormatDuration renders seconds as mm:ss.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
