package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	e := <-ch
	assert.Equal(t, "a", e.Type)
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, uint64(1), b.Dropped())

	unsub()
	unsub()
	b.Publish(Event{Type: "c"})
	_, ok := <-ch
	assert.False(t, ok)
}

func TestForwardFiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		Forward(ctx, b, 16, func(e Event) {
			mu.Lock()
			got = append(got, e.Type)
			mu.Unlock()
		}, "greeting.")
	}()

	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subs) == 1
	}, time.Second, 5*time.Millisecond)

	b.Publish(Event{Type: "task.started"})
	b.Publish(Event{Type: "greeting.dispatched"})
	b.Publish(Event{Type: "greeting.skipped"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"greeting.dispatched", "greeting.skipped"}, got)
}
