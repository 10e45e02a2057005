package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventDetection, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventBlock, EventCritical},
	}}

	blockEvent := &Event{Type: EventBlock}
	criticalEvent := &Event{Type: EventCritical}
	detectionEvent := &Event{Type: EventDetection}

	if !h.shouldSend(client, blockEvent) {
		t.Error("Should receive block events")
	}
	if !h.shouldSend(client, criticalEvent) {
		t.Error("Should receive critical events")
	}
	if h.shouldSend(client, detectionEvent) {
		t.Error("Should NOT receive plain detection events")
	}
}

func TestShouldSend_PlayerFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Players: []string{"0xAAAA"},
	}}

	matching := &Event{
		Type: EventDetection,
		Data: map[string]interface{}{"playerAddress": "0xaaaa"},
	}
	notMatching := &Event{
		Type: EventDetection,
		Data: map[string]interface{}{"playerAddress": "0xbbbb"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match player address case-insensitively")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated players")
	}
}

func TestShouldSend_MinConfidenceFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinConfidence: 0.8,
	}}

	confident := &Event{
		Type: EventBlock,
		Data: map[string]interface{}{"confidence": 0.95},
	}
	weak := &Event{
		Type: EventDetection,
		Data: map[string]interface{}{"confidence": 0.3},
	}
	noConfidence := &Event{
		Type: EventDetection,
		Data: map[string]interface{}{"playerAddress": "0xaaaa"},
	}

	if !h.shouldSend(client, confident) {
		t.Error("Should receive high-confidence events")
	}
	if h.shouldSend(client, weak) {
		t.Error("Should NOT receive low-confidence events")
	}
	if !h.shouldSend(client, noConfidence) {
		t.Error("Events without a confidence field pass through")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventDetection}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Players: []string{"0xaaaa"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventDetection,
		Data: "string data not a map",
	}

	// Player filter can't extract an address from non-map data, so the
	// event is suppressed rather than leaked to the wrong watcher.
	if h.shouldSend(client, event) {
		t.Error("Non-map data should not match a player filter")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventDetection, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastDetection(EventBlock, map[string]interface{}{
		"playerAddress": "0xaaaa", "confidence": 0.95,
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants block events
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventBlock}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a plain detection event (should be filtered out)
	h.Broadcast(&Event{Type: EventDetection, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive plain detection event")
	default:
		// Good - filtered out
	}

	// Send a block event (should be received)
	h.Broadcast(&Event{Type: EventBlock, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive block event")
	}
}
