package orchestrator

import (
	"sync"
	"time"

	"github.com/seantiz/xbrowse/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// maxHistory bounds the events kept per run for late subscribers.
const maxHistory = 1024

// Event types published for a run.
const (
	EventState   = "state"
	EventOutcome = "outcome"
	EventSummary = "summary"
)

// Event is one progress notification for a run.
type Event struct {
	Seq     int            `json:"seq"`
	Type    string         `json:"type"`
	RunID   string         `json:"run_id"`
	State   string         `json:"state,omitempty"`
	Outcome *model.Outcome `json:"outcome,omitempty"`
	Summary *model.Summary `json:"summary,omitempty"`
	Time    time.Time      `json:"time"`
}

// Broker fans run events out to subscribers. It is safe for concurrent use.
//
// Each run keeps a bounded history so a subscriber that arrives mid-run (or
// after the run finished) can replay what it missed. Closed topics are
// retained so late subscribers receive the history and a closed channel
// instead of blocking forever.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs    map[int]chan Event
	nextID  int
	nextSeq int
	history []Event
	closed  bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

func (b *Broker) topic(runID string) *topic {
	t, ok := b.topics[runID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[runID] = t
	}
	return t
}

// Subscribe returns the events published so far for runID, a channel that
// receives later events and an unsubscribe function. If the run has already
// finished, the returned channel is closed.
func (b *Broker) Subscribe(runID string) ([]Event, <-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	history := append([]Event(nil), t.history...)

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return history, ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return history, ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish stamps ev with the run's next sequence number and sends it to
// every subscriber. Events are dropped for subscribers whose buffers are
// full and ignored once the run is closed.
func (b *Broker) Publish(runID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	if t.closed {
		return
	}

	ev.RunID = runID
	ev.Seq = t.nextSeq
	t.nextSeq++
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if len(t.history) < maxHistory {
		t.history = append(t.history, ev)
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop for slow subscribers to avoid blocking workers.
		}
	}
}

// Close signals that no more events will be published for runID. All
// subscriber channels are closed.
func (b *Broker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Forget drops runID's topic and history. Remaining subscribers have their
// channels closed.
func (b *Broker) Forget(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		return
	}
	if !t.closed {
		for _, ch := range t.subs {
			close(ch)
		}
	}
	delete(b.topics, runID)
}
