package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "periphery:events:request.events", getStreamKey(domain.TopicRequests))
	assert.Equal(t, "periphery:events:cluster.events", getStreamKey(domain.TopicCluster))
}

// newOfflineBus returns a bus whose client points at a closed port, so any
// command fails fast instead of reaching a server
func newOfflineBus(t *testing.T) *StreamsEventBus {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewStreamsEventBus(client, "test", 0, zap.NewNop())
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()
	bus := newOfflineBus(t)

	event := domain.Event{
		ID:        "evt-1",
		Type:      domain.EventTypeComputed,
		InferID:   "req-1",
		Node:      "node-a:8080",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	t.Run("decodes the data field", func(t *testing.T) {
		var got []domain.Event
		handler := func(ctx context.Context, e domain.Event) error {
			got = append(got, e)
			return nil
		}

		bus.processMessage(ctx, "stream", "group", redis.XMessage{
			ID:     "1-0",
			Values: map[string]interface{}{"data": string(data)},
		}, handler)

		require.Len(t, got, 1)
		assert.Equal(t, event.ID, got[0].ID)
		assert.Equal(t, event.Type, got[0].Type)
		assert.Equal(t, event.InferID, got[0].InferID)
		assert.True(t, event.Timestamp.Equal(got[0].Timestamp))
	})

	t.Run("skips malformed messages", func(t *testing.T) {
		calls := 0
		handler := func(ctx context.Context, e domain.Event) error {
			calls++
			return nil
		}

		bus.processMessage(ctx, "stream", "group", redis.XMessage{
			ID:     "2-0",
			Values: map[string]interface{}{"payload": string(data)},
		}, handler)
		bus.processMessage(ctx, "stream", "group", redis.XMessage{
			ID:     "3-0",
			Values: map[string]interface{}{"data": "{"},
		}, handler)

		assert.Zero(t, calls)
	})

	t.Run("handler errors are contained", func(t *testing.T) {
		calls := 0
		handler := func(ctx context.Context, e domain.Event) error {
			calls++
			return errors.New("boom")
		}

		bus.processMessage(ctx, "stream", "group", redis.XMessage{
			ID:     "4-0",
			Values: map[string]interface{}{"data": string(data)},
		}, handler)

		assert.Equal(t, 1, calls)
	})
}
