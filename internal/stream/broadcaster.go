// Package stream fans streamed execution output out to live subscribers.
// It decouples the executor from transport mechanics: the producer never
// learns who, if anyone, is listening.
package stream

import (
	"sync"

	"github.com/rs/zerolog"
)

// Chunk is one live output fragment for a command.
type Chunk struct {
	CommandID string `json:"commandId"`
	ChunkType string `json:"chunkType"` // "stdout" or "stderr"
	Data      string `json:"data"`
}

// Terminal marks a command's completion. ExitCode is nil when the remote
// channel closed without reporting one.
type Terminal struct {
	CommandID  string `json:"commandId"`
	ExitCode   *int   `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
	Aborted    bool   `json:"aborted,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Event is what subscribers receive: exactly one of Chunk or Terminal.
type Event struct {
	Chunk    *Chunk
	Terminal *Terminal
}

// subscriberBuffer is how many events a slow subscriber can fall behind
// before chunks are dropped for it.
const subscriberBuffer = 64

// Subscriber is one live-tail listener for a single command id. Events
// arrive on C; the channel is closed after the terminal event.
type Subscriber struct {
	C <-chan Event

	ch      chan Event
	dropped int
	mu      sync.Mutex
}

// Dropped reports how many chunks were discarded because this subscriber
// couldn't keep up.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Broadcaster maintains subscriber sets keyed by command id. Publishing is
// fire-and-forget: with no subscribers a chunk is silently dropped, and a
// slow subscriber never blocks the producer. There is no replay; a
// subscriber added after a chunk was published never sees it.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
	log  zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[*Subscriber]struct{}),
		log:  log,
	}
}

// Subscribe registers a listener for a command id.
func (b *Broadcaster) Subscribe(commandID string) *Subscriber {
	sub := &Subscriber{ch: make(chan Event, subscriberBuffer)}
	sub.C = sub.ch

	b.mu.Lock()
	set, ok := b.subs[commandID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		b.subs[commandID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a listener. Safe to call after the terminal event.
func (b *Broadcaster) Unsubscribe(commandID string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[commandID]
	if !ok {
		return
	}
	if _, present := set[sub]; !present {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, commandID)
	}
}

// Publish delivers a chunk to every current subscriber for its command id.
// Non-blocking: chunks are dropped for subscribers whose buffer is full.
func (b *Broadcaster) Publish(chunk Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[chunk.CommandID] {
		select {
		case sub.ch <- Event{Chunk: &chunk}:
		default:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
		}
	}
}

// PublishTerminal marks a command complete and closes all of its
// subscriber channels. The terminal event itself is delivered even to a
// subscriber with a full buffer of unread chunks, by draining one slot.
func (b *Broadcaster) PublishTerminal(term Terminal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[term.CommandID]
	for sub := range set {
		ev := Event{Terminal: &term}
		select {
		case sub.ch <- ev:
		default:
			// Sacrifice the oldest buffered chunk so completion always lands.
			select {
			case <-sub.ch:
				sub.mu.Lock()
				sub.dropped++
				sub.mu.Unlock()
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
		close(sub.ch)
	}
	delete(b.subs, term.CommandID)
}

// SubscriberCount reports the number of listeners for a command id.
func (b *Broadcaster) SubscriberCount(commandID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[commandID])
}
