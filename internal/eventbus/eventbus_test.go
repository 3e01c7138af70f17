package eventbus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	h := New()
	sub := h.Subscribe()
	defer sub.Close()

	h.PublishClap(ClapPayload{SourceID: "mic:0", Timestamp: 1, Score: 0.9})

	select {
	case event := <-sub.Channel():
		require.Equal(t, KindClap, event.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := New()
	a := h.Subscribe()
	b := h.Subscribe()
	defer a.Close()
	defer b.Close()

	h.PublishDetectionStatus("started")

	for _, sub := range []*Subscription{a, b} {
		select {
		case event := <-sub.Channel():
			require.Equal(t, KindDetectionStatus, event.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriberBuffer(t *testing.T) {
	h := New()
	sub := h.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			h.PublishDebug(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestSubscriptionCloseClosesChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe()
	sub.Close()

	_, ok := <-sub.Channel()
	require.False(t, ok)
}

func TestWebSocketHandlerRelaysEvents(t *testing.T) {
	hub := New()
	handler := NewWebSocketHandler(hub, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // let the subscribe goroutine register
	hub.PublishClap(ClapPayload{SourceID: "mic:0", Timestamp: 1, Score: 0.9})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg, &event))
	require.Equal(t, KindClap, event.Kind)
}

func TestWebSocketHandlerRespondsToPing(t *testing.T) {
	hub := New()
	handler := NewWebSocketHandler(hub, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("PING")))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "PONG", string(msg))
}

var _ http.Handler = (*WebSocketHandler)(nil)
