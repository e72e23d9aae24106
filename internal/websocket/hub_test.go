package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, venueID, stream string, buffer int) *Client {
	return &Client{
		Hub:     hub,
		Send:    make(chan []byte, buffer),
		VenueID: venueID,
		Stream:  stream,
	}
}

func recvPayload(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return Event{}
	}
}

func TestPublishReachesOnlyMatchingRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	display := newTestClient(hub, "venue-1", StreamDisplay, 4)
	leaderboard := newTestClient(hub, "venue-1", StreamLeaderboard, 4)
	otherVenue := newTestClient(hub, "venue-2", StreamDisplay, 4)
	hub.register <- display
	hub.register <- leaderboard
	hub.register <- otherVenue

	hub.Publish("venue-1", StreamDisplay, Event{Event: "queue_updated", Data: map[string]interface{}{"queue_depth": float64(3)}})

	event := recvPayload(t, display)
	assert.Equal(t, "queue_updated", event.Event)

	// Same venue other stream, and other venue same stream, stay silent.
	select {
	case <-leaderboard.Send:
		t.Fatal("leaderboard client received a display event")
	case <-otherVenue.Send:
		t.Fatal("other venue received the event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishPrunesSlowSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	healthy := newTestClient(hub, "venue-1", StreamDisplay, 8)
	stuck := newTestClient(hub, "venue-1", StreamDisplay, 1)
	hub.register <- healthy
	hub.register <- stuck

	// Fill the stuck client's buffer, then publish more; the hub must drop
	// the stuck client rather than block its siblings.
	for i := 0; i < 3; i++ {
		hub.Publish("venue-1", StreamDisplay, Event{Event: "tick"})
	}

	for i := 0; i < 3; i++ {
		recvPayload(t, healthy)
	}

	// The stuck client's channel ends up closed by the prune.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stuck.Send:
			if !ok {
				return // pruned
			}
		case <-deadline:
			t.Fatal("slow subscriber was never pruned")
		}
	}
}

func TestUnregisterRemovesEmptyRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, "venue-1", StreamDisplay, 1)
	hub.register <- client
	hub.unregister <- client

	// Publishing into the now-empty room must not panic or deliver.
	hub.Publish("venue-1", StreamDisplay, Event{Event: "queue_updated"})

	select {
	case _, ok := <-client.Send:
		assert.False(t, ok, "channel should be closed after unregister")
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}
