package stream

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub1 := b.Subscribe("cmd-1")
	sub2 := b.Subscribe("cmd-1")
	other := b.Subscribe("cmd-2")

	b.Publish(Chunk{CommandID: "cmd-1", ChunkType: "stdout", Data: "hello"})

	for _, sub := range []*Subscriber{sub1, sub2} {
		ev := <-sub.C
		require.NotNil(t, ev.Chunk)
		assert.Equal(t, "hello", ev.Chunk.Data)
		assert.Equal(t, "stdout", ev.Chunk.ChunkType)
	}
	select {
	case ev := <-other.C:
		t.Fatalf("subscriber for another command received %+v", ev)
	default:
	}
}

func TestPublishWithoutSubscribersIsSilent(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Publish(Chunk{CommandID: "nobody", Data: "x"})
	b.PublishTerminal(Terminal{CommandID: "nobody"})
	assert.Zero(t, b.SubscriberCount("nobody"))
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Publish(Chunk{CommandID: "cmd-1", Data: "early"})

	sub := b.Subscribe("cmd-1")
	select {
	case ev := <-sub.C:
		t.Fatalf("late subscriber received replayed event %+v", ev)
	default:
	}

	b.Publish(Chunk{CommandID: "cmd-1", Data: "late"})
	ev := <-sub.C
	assert.Equal(t, "late", ev.Chunk.Data)
}

func TestTerminalClosesChannel(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe("cmd-1")

	code := 0
	b.PublishTerminal(Terminal{CommandID: "cmd-1", ExitCode: &code, DurationMs: 42})

	ev, ok := <-sub.C
	require.True(t, ok)
	require.NotNil(t, ev.Terminal)
	assert.Equal(t, 0, *ev.Terminal.ExitCode)
	assert.Equal(t, int64(42), ev.Terminal.DurationMs)

	_, ok = <-sub.C
	assert.False(t, ok, "channel should be closed after the terminal event")
	assert.Zero(t, b.SubscriberCount("cmd-1"))
}

func TestSlowSubscriberDropsChunksNotTerminal(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe("cmd-1")

	// Overflow the buffer without reading anything.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Chunk{CommandID: "cmd-1", Data: fmt.Sprintf("chunk-%d", i)})
	}
	assert.Equal(t, 10, sub.Dropped())

	b.PublishTerminal(Terminal{CommandID: "cmd-1", Aborted: true})

	// Drain: the final event must be the terminal, even though the buffer
	// was full when it was published.
	var sawTerminal bool
	for ev := range sub.C {
		if ev.Terminal != nil {
			sawTerminal = true
			assert.True(t, ev.Terminal.Aborted)
		}
	}
	assert.True(t, sawTerminal)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe("cmd-1")
	keep := b.Subscribe("cmd-1")

	b.Unsubscribe("cmd-1", sub)
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 1, b.SubscriberCount("cmd-1"))

	// Double unsubscribe must not double-close.
	b.Unsubscribe("cmd-1", sub)

	b.Publish(Chunk{CommandID: "cmd-1", Data: "still here"})
	ev := <-keep.C
	assert.Equal(t, "still here", ev.Chunk.Data)
}

func TestUnsubscribeAfterTerminal(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe("cmd-1")
	b.PublishTerminal(Terminal{CommandID: "cmd-1"})

	// The websocket handler always defers this; it must be a no-op here.
	b.Unsubscribe("cmd-1", sub)
}

func TestConcurrentPublish(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe("cmd-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		var events int
		for range sub.C {
			events++
		}
		assert.Greater(t, events, 0)
	}()

	for i := 0; i < 100; i++ {
		b.Publish(Chunk{CommandID: "cmd-1", Data: "x"})
	}
	b.PublishTerminal(Terminal{CommandID: "cmd-1"})
	<-done
}
