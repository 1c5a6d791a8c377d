package stream

import (
	"sync"

	"parley/internal/shared/logging"
)

// Broadcaster fans events out to every client subscribed to a session.
// Sends are non-blocking: a slow client loses events rather than stalling
// the producing run. Boundary ends are treated as critical and will evict
// the oldest buffered event to get through.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string][]chan Event

	historyMu    sync.RWMutex
	eventHistory map[string][]Event
	maxHistory   int

	metricsMu sync.Mutex
	sent      int64
	dropped   int64
	active    int64
	onDrop    func(n int)

	sinkBuffer int
	logger     logging.Logger
}

// NewBroadcaster creates a broadcaster. sinkBuffer is the per-client channel
// depth and maxHistory bounds the per-session replay buffer.
func NewBroadcaster(sinkBuffer, maxHistory int, logger logging.Logger) *Broadcaster {
	return &Broadcaster{
		clients:      make(map[string][]chan Event),
		eventHistory: make(map[string][]Event),
		maxHistory:   maxHistory,
		sinkBuffer:   sinkBuffer,
		logger:       logging.OrNop(logger),
	}
}

// SetDropHook registers a callback invoked once per dropped event, so
// external counters track drops alongside the internal Stats.
func (b *Broadcaster) SetDropHook(fn func(n int)) {
	b.metricsMu.Lock()
	b.onDrop = fn
	b.metricsMu.Unlock()
}

// SessionSink returns a Sink that publishes into the given session.
func (b *Broadcaster) SessionSink(sessionID string) Sink {
	return SinkFunc(func(ev Event) { b.Publish(sessionID, ev) })
}

// Publish stores the event for replay and fans it out to the session's
// clients without blocking.
func (b *Broadcaster) Publish(sessionID string, ev Event) {
	if ev == nil {
		return
	}
	b.storeHistory(sessionID, ev)

	b.mu.RLock()
	clients := b.clients[sessionID]
	b.mu.RUnlock()

	for _, ch := range clients {
		select {
		case ch <- ev:
			b.countSent()
		default:
			if b.deliverCritical(ch, ev) {
				continue
			}
			b.logger.Warn("client buffer full for session %s, dropping %s event", sessionID, ev.EventType())
			b.countDropped()
		}
	}
}

// deliverCritical forces a boundary-end through a saturated buffer by
// evicting the oldest queued event. Losing the terminal verdict would leave
// the consumer with a permanently open boundary.
func (b *Broadcaster) deliverCritical(ch chan Event, ev Event) bool {
	if ev.EventType() != EventTypeEnd {
		return false
	}
	select {
	case ch <- ev:
		b.countSent()
		return true
	default:
	}
	select {
	case <-ch:
		b.countDropped()
	default:
	}
	select {
	case ch <- ev:
		b.countSent()
		return true
	default:
		return false
	}
}

// Subscribe registers a client for a session and returns its channel plus a
// cancel function. The cancel function closes the channel.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, b.sinkBuffer)

	b.mu.Lock()
	b.clients[sessionID] = append(b.clients[sessionID], ch)
	b.mu.Unlock()

	b.metricsMu.Lock()
	b.active++
	b.metricsMu.Unlock()
	b.logger.Debug("client subscribed to session %s", sessionID)

	cancel := func() { b.unsubscribe(sessionID, ch) }
	return ch, cancel
}

func (b *Broadcaster) unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[sessionID]
	for i, client := range clients {
		if client == ch {
			b.clients[sessionID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			b.metricsMu.Lock()
			b.active--
			b.metricsMu.Unlock()
			if len(b.clients[sessionID]) == 0 {
				delete(b.clients, sessionID)
			}
			return
		}
	}
}

// History returns a copy of the session's retained events for replay.
func (b *Broadcaster) History(sessionID string) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	history := b.eventHistory[sessionID]
	if len(history) == 0 {
		return nil
	}
	return append([]Event(nil), history...)
}

// ClearHistory drops a session's replay buffer.
func (b *Broadcaster) ClearHistory(sessionID string) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	delete(b.eventHistory, sessionID)
}

// ClientCount reports the number of clients subscribed to a session.
func (b *Broadcaster) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[sessionID])
}

// Stats reports cumulative delivery counters.
func (b *Broadcaster) Stats() (sent, dropped, active int64) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	return b.sent, b.dropped, b.active
}

func (b *Broadcaster) storeHistory(sessionID string, ev Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	history := append(b.eventHistory[sessionID], ev)
	if len(history) > b.maxHistory {
		history = history[len(history)-b.maxHistory:]
	}
	b.eventHistory[sessionID] = history
}

func (b *Broadcaster) countSent() {
	b.metricsMu.Lock()
	b.sent++
	b.metricsMu.Unlock()
}

func (b *Broadcaster) countDropped() {
	b.metricsMu.Lock()
	b.dropped++
	hook := b.onDrop
	b.metricsMu.Unlock()
	if hook != nil {
		hook(1)
	}
}
