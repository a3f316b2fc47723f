package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/webatelier/livechat-server-go/internal/redis"
)

// Monitor is the receiving side of the typing channel. The transport gives
// no delivery guarantee, so a typist with no signal at all for the timeout
// window after their last start is reported as stopped. That implicit stop
// is required behavior, not a nicety.
type Monitor struct {
	timeout  time.Duration
	onChange func(Signal)

	mu     sync.Mutex
	timers map[string]*time.Timer
	last   map[string]Signal
	gens   map[string]uint64
}

func NewMonitor(timeout time.Duration, onChange func(Signal)) *Monitor {
	return &Monitor{
		timeout:  timeout,
		onChange: onChange,
		timers:   make(map[string]*time.Timer),
		last:     make(map[string]Signal),
		gens:     make(map[string]uint64),
	}
}

// Observe feeds one raw signal into the monitor. Transitions (start after
// stop, stop after start) invoke the change callback; repeated starts only
// extend the timeout window.
func (m *Monitor) Observe(signal Signal) {
	key := typistKey(signal)

	m.mu.Lock()
	defer m.mu.Unlock()

	if signal.IsTyping {
		_, wasTyping := m.timers[key]
		if timer, ok := m.timers[key]; ok {
			timer.Stop()
		}
		// A timer can fire concurrently with Stop and then block on the
		// lock; the generation check in expire makes that firing a no-op.
		m.gens[key]++
		gen := m.gens[key]
		m.timers[key] = time.AfterFunc(m.timeout, func() { m.expire(key, gen) })
		m.last[key] = signal

		if !wasTyping {
			m.onChange(signal)
		}
		return
	}

	m.clearLocked(key, signal)
}

// Close drops all typist state without emitting stop transitions.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, timer := range m.timers {
		timer.Stop()
		m.gens[key]++
		delete(m.timers, key)
		delete(m.last, key)
	}
}

func (m *Monitor) expire(key string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gens[key] != gen {
		// A newer start superseded this timer while it was firing.
		return
	}

	last, ok := m.last[key]
	if !ok {
		return
	}
	last.IsTyping = false
	m.clearLocked(key, last)
}

func (m *Monitor) clearLocked(key string, stop Signal) {
	timer, wasTyping := m.timers[key]
	if wasTyping {
		timer.Stop()
		m.gens[key]++
		delete(m.timers, key)
		delete(m.last, key)
		m.onChange(stop)
	}
}

func typistKey(signal Signal) string {
	if signal.IsAgent {
		return "agent:" + signal.ActorName
	}
	return "visitor:" + signal.ActorName
}

// Watcher subscribes to a session's typing channel and feeds a Monitor.
type Watcher struct {
	monitor *Monitor
	cancel  context.CancelFunc
}

func NewWatcher(redisClient *redisclient.Client, sessionID string, timeout time.Duration, onChange func(Signal)) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		monitor: NewMonitor(timeout, onChange),
		cancel:  cancel,
	}
	go w.run(ctx, redisClient, sessionID)
	return w
}

func (w *Watcher) Close() {
	w.cancel()
	w.monitor.Close()
}

func (w *Watcher) run(ctx context.Context, redisClient *redisclient.Client, sessionID string) {
	pubsub := redisClient.Subscribe(ctx, redisclient.TypingChannel(sessionID))
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var signal Signal
			if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
				log.Debug().Err(err).Msg("malformed typing signal dropped")
				continue
			}
			w.monitor.Observe(signal)
		}
	}
}
