package presence

import (
	"context"
	"sync"
	"time"
)

// Tracker sits on the sending side of the typing channel. The first
// keystroke after an idle period emits a start signal; a stop signal follows
// after the idle window passes with no further keystrokes, or immediately
// when the message is sent.
type Tracker struct {
	publisher SignalPublisher
	sessionID string
	actorName string
	isAgent   bool
	idle      time.Duration

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
}

func NewTracker(publisher SignalPublisher, sessionID, actorName string, isAgent bool, idle time.Duration) *Tracker {
	return &Tracker{
		publisher: publisher,
		sessionID: sessionID,
		actorName: actorName,
		isAgent:   isAgent,
		idle:      idle,
	}
}

func (t *Tracker) Keystroke(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.typing {
		t.typing = true
		t.publisher.Publish(ctx, t.signal(true))
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.idleStop)
}

// Sent ends the typing state immediately, used when the composed message
// goes out.
func (t *Tracker) Sent(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(ctx)
}

func (t *Tracker) idleStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(context.Background())
}

func (t *Tracker) stopLocked(ctx context.Context) {
	if !t.typing {
		return
	}
	t.typing = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.publisher.Publish(ctx, t.signal(false))
}

func (t *Tracker) signal(isTyping bool) Signal {
	return Signal{
		SessionID: t.sessionID,
		ActorName: t.actorName,
		IsAgent:   t.isAgent,
		IsTyping:  isTyping,
	}
}
