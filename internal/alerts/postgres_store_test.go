package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/gameguard/internal/detect"
	"github.com/mbd888/gameguard/internal/testutil"
)

func TestPostgresStoreAlertRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	a := &Alert{
		PlayerAddress: "0xAbCd0000000000000000000000000000000000C1",
		GameID:        "game-1",
		SessionID:     "det_pg1",
		Reason:        "impossibly fast completion",
		Confidence:    0.95,
		TrustLevel:    "low",
		Findings: []*detect.Finding{
			{
				Category:   detect.CategoryImpossibleSpeed,
				Severity:   detect.SeverityCritical,
				Confidence: 0.95,
				DetectedAt: time.Now().UTC(),
			},
		},
	}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" {
		t.Fatal("Create did not assign an id")
	}
	if a.CreatedAt.IsZero() {
		t.Fatal("Create did not assign a timestamp")
	}

	got, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("list = %d, want 1", len(got))
	}
	if got[0].Reason != a.Reason || got[0].Confidence != 0.95 || got[0].TrustLevel != "low" {
		t.Errorf("alert = %+v, columns not preserved", got[0])
	}

	// Findings survive the JSONB round trip.
	if len(got[0].Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(got[0].Findings))
	}
	f := got[0].Findings[0]
	if f.Category != detect.CategoryImpossibleSpeed || f.Severity != detect.SeverityCritical {
		t.Errorf("finding = %+v, not preserved", f)
	}
}

func TestPostgresStoreAlertPlayerFilter(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	target := "0xAbCd0000000000000000000000000000000000C2"
	other := "0xAbCd0000000000000000000000000000000000C3"

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, &Alert{PlayerAddress: target, GameID: "g", SessionID: "s", Reason: "r", TrustLevel: "low"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.Create(ctx, &Alert{PlayerAddress: other, GameID: "g", SessionID: "s", Reason: "r", TrustLevel: "low"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Filter is case-insensitive on the player address.
	got, err := store.List(ctx, target, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("filtered = %d, want 3", len(got))
	}

	limited, err := store.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited = %d, want 2", len(limited))
	}
}
