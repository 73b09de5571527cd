package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/common"
	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
	"github.com/ternarybob/slidegen/internal/services/events"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_SnapshotThenEvents(t *testing.T) {
	logger := arbor.NewLogger()
	service := &mockJobService{}
	service.On("Groups").Return([]models.Group{{ID: "grp_1", Status: models.StatusRunning}})

	eventService := events.NewService(logger)
	defer eventService.Close()

	handler := NewWebSocketHandler(service, logger)
	subscriber := NewEventSubscriber(handler, eventService, logger, &common.WebSocketConfig{
		AllowedEvents: []string{"job_status"},
	})
	defer subscriber.Close()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	snapshot := readMessage(t, conn)
	assert.Equal(t, "snapshot", snapshot.Type)
	payload := snapshot.Payload.(map[string]interface{})
	assert.NotEmpty(t, payload["server_instance_id"])
	assert.Len(t, payload["groups"], 1)

	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Filtered out by the whitelist
	require.NoError(t, eventService.Publish(t.Context(), interfaces.Event{
		Type:    interfaces.EventJobLog,
		Payload: models.JobEvent{JobID: "job_1", Message: "noise"},
	}))
	require.NoError(t, eventService.Publish(t.Context(), interfaces.Event{
		Type:    interfaces.EventJobStatus,
		Payload: models.JobEvent{JobID: "job_1", GroupID: "grp_1", Status: models.StatusPaused},
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, "job_status", msg.Type)
	assert.Equal(t, "paused", msg.Payload.(map[string]interface{})["status"])
}

func TestEventSubscriber_ThrottlesPerEntity(t *testing.T) {
	logger := arbor.NewLogger()
	subscriber := NewEventSubscriber(NewWebSocketHandler(nil, logger), nil, logger, &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{"job_progress": "1h", "group_progress": "nonsense"},
	})

	progress := func(jobID string, next int) interfaces.Event {
		return interfaces.Event{
			Type:    interfaces.EventJobProgress,
			Payload: models.JobEvent{JobID: jobID, Status: models.StatusRunning, NextRowIndex: next, TotalRows: 10},
		}
	}

	assert.True(t, subscriber.shouldBroadcastEvent(progress("job_1", 1)))
	assert.False(t, subscriber.shouldBroadcastEvent(progress("job_1", 2)), "second update within the interval is dropped")
	assert.True(t, subscriber.shouldBroadcastEvent(progress("job_2", 1)), "other jobs have their own throttle")
	assert.True(t, subscriber.shouldBroadcastEvent(progress("job_1", 10)), "final progress always passes")

	group := interfaces.Event{Type: interfaces.EventGroupProgress, Payload: models.GroupEvent{GroupID: "grp_1"}}
	assert.True(t, subscriber.shouldBroadcastEvent(group))
	assert.True(t, subscriber.shouldBroadcastEvent(group), "unparseable intervals disable throttling")
}

func TestWebSocket_CloseDisconnectsClients(t *testing.T) {
	service := &mockJobService{}
	service.On("Groups").Return([]models.Group{})
	handler := NewWebSocketHandler(service, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	handler.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
