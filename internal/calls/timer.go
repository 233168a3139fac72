package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"call-platform/pkg/logger"
)

// Stopper is the part of *time.Timer the missed-call timer uses.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests swap it for a manual clock.
type AfterFunc func(d time.Duration, f func()) Stopper

func defaultAfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// MissedCallTimer runs one delayed check per armed session. A check always
// fires; whether it acts is decided by the check itself at fire time.
// Firings never overlap.
type MissedCallTimer struct {
	delay     time.Duration
	timeout   time.Duration
	afterFunc AfterFunc
	check     func(ctx context.Context, sessionID int64)
	log       *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[int64]Stopper

	fireMu sync.Mutex
	wg     sync.WaitGroup
}

func newMissedCallTimer(delay time.Duration, af AfterFunc, check func(context.Context, int64), log *slog.Logger) *MissedCallTimer {
	if af == nil {
		af = defaultAfterFunc
	}
	return &MissedCallTimer{
		delay:     delay,
		timeout:   10 * time.Second,
		afterFunc: af,
		check:     check,
		log:       log,
		pending:   make(map[int64]Stopper),
	}
}

// Arm schedules the check for sessionID. It is a no-op after Close or when
// the session is already armed.
func (t *MissedCallTimer) Arm(sessionID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, ok := t.pending[sessionID]; ok {
		return
	}
	t.wg.Add(1)
	t.pending[sessionID] = t.afterFunc(t.delay, func() { t.fire(sessionID) })
}

// Pending returns the number of armed checks that have not fired.
func (t *MissedCallTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *MissedCallTimer) fire(sessionID int64) {
	defer t.wg.Done()

	t.mu.Lock()
	delete(t.pending, sessionID)
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	t.fireMu.Lock()
	defer t.fireMu.Unlock()

	ctx, cancel := context.WithTimeout(logger.With(context.Background(), t.log), t.timeout)
	defer cancel()
	t.check(ctx, sessionID)
}

// Close stops pending checks and waits for a firing in progress.
func (t *MissedCallTimer) Close() {
	t.mu.Lock()
	t.closed = true
	for id, s := range t.pending {
		if s.Stop() {
			t.wg.Done()
		}
		delete(t.pending, id)
	}
	t.mu.Unlock()

	t.wg.Wait()
}
