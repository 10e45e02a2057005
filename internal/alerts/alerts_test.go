package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryStoreCreateAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, &Alert{
			PlayerAddress: "0xAAA",
			GameID:        "game-1",
			Reason:        "automation detected",
			Confidence:    0.95,
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.Create(ctx, &Alert{PlayerAddress: "0xBBB", GameID: "game-2"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("len(all) = %d, want 4", len(all))
	}

	// Player filter is case-insensitive.
	forA, err := store.List(ctx, "0xaaa", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(forA) != 3 {
		t.Errorf("len(forA) = %d, want 3", len(forA))
	}
	for _, a := range forA {
		if a.ID == "" {
			t.Error("alert missing generated id")
		}
	}
}

func TestMemoryStoreListLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 10; i++ {
		_ = store.Create(ctx, &Alert{PlayerAddress: "0xAAA"})
	}

	got, err := store.List(ctx, "", 5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("len = %d, want 5", len(got))
	}
}

func TestNotifierStoresWithoutWebhook(t *testing.T) {
	store := NewMemoryStore()
	n := NewNotifier(store, "", slog.Default())

	n.Notify(context.Background(), &Alert{
		PlayerAddress: "0xAAA",
		Reason:        "blocked",
		Confidence:    0.95,
	})

	if len(store.Alerts()) != 1 {
		t.Fatalf("stored = %d, want 1", len(store.Alerts()))
	}
}

func TestNotifierRejectsUnsafeWebhook(t *testing.T) {
	// Loopback URLs are refused at construction; the notifier degrades
	// to store-only.
	n := NewNotifier(NewMemoryStore(), "http://127.0.0.1:9/hook", slog.Default())
	if n.webhookURL != "" {
		t.Error("loopback webhook URL should have been disabled")
	}
}

func TestNotifierDeliversWebhook(t *testing.T) {
	received := make(chan *Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- &a
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	n := &Notifier{
		store:      store,
		webhookURL: srv.URL, // bypass the SSRF check: httptest binds loopback
		client:     srv.Client(),
		logger:     slog.Default(),
	}

	n.Notify(context.Background(), &Alert{
		PlayerAddress: "0xAAA",
		Reason:        "automation detected",
		Confidence:    0.97,
	})

	select {
	case a := <-received:
		if a.Reason != "automation detected" {
			t.Errorf("reason = %q", a.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestNotifierRetriesTransientFailure(t *testing.T) {
	var calls int
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &Notifier{
		store:      NewMemoryStore(),
		webhookURL: srv.URL, // bypass the SSRF check: httptest binds loopback
		client:     srv.Client(),
		logger:     slog.Default(),
	}

	n.Notify(context.Background(), &Alert{PlayerAddress: "0xAAA", Reason: "blocked"})

	select {
	case <-received:
		if calls < 2 {
			t.Errorf("calls = %d, want a retry after the 502", calls)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not retried after transient failure")
	}
}
