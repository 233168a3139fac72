package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"call-platform/internal/calls"
	"call-platform/internal/directory"
)

func newTestService() (*Service, *MemoryPublisher) {
	dir := directory.NewMemory()
	dir.AddUser(calls.User{ID: 1, Name: "Ana", Role: "USER"})
	dir.AddUser(calls.User{ID: 2, Name: "Bo", Role: "USER"})

	pub := NewMemoryPublisher()
	svc := NewService(pub, dir)
	svc.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return svc, pub
}

func decode(t *testing.T, p Published) Message {
	t.Helper()
	var m Message
	if err := json.Unmarshal(p.Payload, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestNotifyIncomingCall_GoesToCallee(t *testing.T) {
	svc, pub := newTestService()
	sess := calls.Session{ID: 5, ContextType: calls.ContextPrivate, ContextID: 2, CreatedBy: 1, Active: true}

	if err := svc.NotifyIncomingCall(context.Background(), sess, calls.User{ID: 1, Name: "Ana"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	sent := pub.Sent()
	if len(sent) != 1 || sent[0].Channel != "notifications.2" {
		t.Fatalf("unexpected publishes: %+v", sent)
	}
	m := decode(t, sent[0])
	if m.Type != MessageIncomingCall || m.Content != "Ana is calling" || m.SessionID != 5 {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestNotifyIncomingCall_SkipsUnknownRecipient(t *testing.T) {
	svc, pub := newTestService()
	sess := calls.Session{ID: 5, ContextType: calls.ContextPrivate, ContextID: 99, CreatedBy: 1, Active: true}
	if err := svc.NotifyIncomingCall(context.Background(), sess, calls.User{ID: 1}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pub.Sent()) != 0 {
		t.Fatalf("expected nothing published")
	}
}

func TestNotifyCallSummary_CompletedToBothParties(t *testing.T) {
	svc, pub := newTestService()
	d := 125
	sess := calls.Session{ID: 5, ContextType: calls.ContextPrivate, ContextID: 2, CreatedBy: 1, DurationSeconds: &d}

	if err := svc.NotifyCallSummary(context.Background(), sess); err != nil {
		t.Fatalf("notify: %v", err)
	}
	sent := pub.Sent()
	if len(sent) != 2 || sent[0].Channel != "private.1" || sent[1].Channel != "private.2" {
		t.Fatalf("unexpected publishes: %+v", sent)
	}
	m := decode(t, sent[1])
	if m.Type != MessageCallCompleted || m.Content != "Call ended (02:05)" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestNotifyCallSummary_Missed(t *testing.T) {
	svc, pub := newTestService()
	zero := 0
	sess := calls.Session{ID: 5, ContextType: calls.ContextPrivate, ContextID: 2, CreatedBy: 1, Missed: true, DurationSeconds: &zero}

	if err := svc.NotifyCallSummary(context.Background(), sess); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if m := decode(t, pub.Sent()[0]); m.Type != MessageCallMissed || m.Content != "Missed call" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestNotifyCallSummary_OnlyPrivate(t *testing.T) {
	svc, pub := newTestService()
	sess := calls.Session{ID: 5, ContextType: calls.ContextGroup, ContextID: 2, CreatedBy: 1, Missed: true}
	if err := svc.NotifyCallSummary(context.Background(), sess); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pub.Sent()) != 0 {
		t.Fatalf("group calls get no summary")
	}
}

func TestNotify_PublishErrorIsReturned(t *testing.T) {
	svc, pub := newTestService()
	pub.Err = errors.New("redis down")
	sess := calls.Session{ID: 5, ContextType: calls.ContextPrivate, ContextID: 2, CreatedBy: 1, Missed: true}
	if err := svc.NotifyCallSummary(context.Background(), sess); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{0: "00:00", -3: "00:00", 59: "00:59", 61: "01:01", 3600: "60:00"}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}
