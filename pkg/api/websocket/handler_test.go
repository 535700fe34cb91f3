package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/periphery/pkg/adapters/events/memory"
	"github.com/aescanero/periphery/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleRequestStream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	bus := memory.NewInMemoryEventBus()
	handler := NewHandler(bus, zap.NewNop())

	router := gin.New()
	router.GET("/api/v1/requests/:id/ws", handler.HandleRequestStream)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/requests/req-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.Subscribers(domain.TopicRequests) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.TopicRequests, domain.Event{ID: "e1", Type: domain.EventTypeComputed, InferID: "req-2"}))
	require.NoError(t, bus.Publish(ctx, domain.TopicRequests, domain.Event{ID: "e2", Type: domain.EventTypeForwarded, InferID: "req-1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event domain.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "e2", event.ID)
	assert.Equal(t, "req-1", event.InferID)
	assert.Equal(t, domain.EventTypeForwarded, event.Type)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return bus.Subscribers(domain.TopicRequests) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
