package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rishta/models"
)

type collector struct {
	mu   sync.Mutex
	got  []string
	more chan struct{}
}

func newCollector() *collector {
	return &collector{more: make(chan struct{}, 1024)}
}

func (c *collector) add(m models.Message) {
	c.mu.Lock()
	c.got = append(c.got, m.Content)
	c.mu.Unlock()
	c.more <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.more:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub()
	c := newCollector()
	sub := hub.Subscribe("conv-1", c.add)
	defer sub.Cancel()

	for _, text := range []string{"m1", "m2", "m3", "m4"} {
		hub.Publish(models.Message{ConversationID: "conv-1", Content: text})
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, c.wait(t, 4))
}

func TestPublishIsScopedToConversation(t *testing.T) {
	hub := NewHub()
	c := newCollector()
	sub := hub.Subscribe("conv-1", c.add)
	defer sub.Cancel()

	hub.Publish(models.Message{ConversationID: "conv-2", Content: "other"})
	hub.Publish(models.Message{ConversationID: "conv-1", Content: "mine"})
	assert.Equal(t, []string{"mine"}, c.wait(t, 1))
}

func TestCancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	c := newCollector()
	sub := hub.Subscribe("conv-1", c.add)
	require.Equal(t, 1, hub.Count())

	hub.Publish(models.Message{ConversationID: "conv-1", Content: "before"})
	c.wait(t, 1)

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, hub.Count())

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Cancel")
	}

	hub.Publish(models.Message{ConversationID: "conv-1", Content: "after"})
	select {
	case <-c.more:
		t.Fatal("message delivered after Cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	c := newCollector()
	sub := hub.Subscribe("conv-1", func(m models.Message) {
		<-release
		c.add(m)
	})
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(models.Message{ConversationID: "conv-1", Content: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
	assert.Len(t, c.wait(t, 100), 100)
}

func TestCancelFromCallback(t *testing.T) {
	hub := NewHub()
	var sub *Subscription
	called := make(chan struct{}, 2)
	sub = hub.Subscribe("conv-1", func(models.Message) {
		called <- struct{}{}
		sub.Cancel()
	})

	hub.Publish(models.Message{ConversationID: "conv-1"})
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
	<-sub.Done()
	assert.Equal(t, 0, hub.Count())
}
