package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan domain.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, domain.TopicRequests, func(ctx context.Context, e domain.Event) error {
		received <- e
		return nil
	}))
	assert.Equal(t, 1, bus.Subscribers(domain.TopicRequests))

	require.NoError(t, bus.Publish(context.Background(), domain.TopicRequests, domain.Event{
		ID:      "evt-1",
		Type:    domain.EventTypeComputed,
		InferID: "req-1",
	}))

	select {
	case e := <-received:
		assert.Equal(t, "req-1", e.InferID)
		assert.Equal(t, domain.EventTypeComputed, e.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		return bus.Subscribers(domain.TopicRequests) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus()
	assert.NoError(t, bus.Publish(context.Background(), domain.TopicCluster, domain.Event{ID: "evt-1"}))
	assert.NoError(t, bus.Close())
}
