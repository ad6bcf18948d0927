package store

import (
	"context"
	"testing"
)

func TestCreateSubscription(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	ps := NewPushStore(db)
	ctx := context.Background()

	sub, err := ps.CreateSubscription(ctx, m.ID, "https://push.example.com/sub1", "p256dh_key1", "auth_key1", "Chrome Desktop")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.Endpoint != "https://push.example.com/sub1" {
		t.Errorf("endpoint = %q, want %q", sub.Endpoint, "https://push.example.com/sub1")
	}
	if sub.DeviceName != "Chrome Desktop" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Chrome Desktop")
	}
}

func TestCreateSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	ps := NewPushStore(db)
	ctx := context.Background()

	first, err := ps.CreateSubscription(ctx, m.ID, "https://push.example.com/sub1", "key1", "auth1", "Phone")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := ps.CreateSubscription(ctx, m.ID, "https://push.example.com/sub1", "key2", "auth2", "Phone (renamed)")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if second.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want key2", second.P256dhKey)
	}

	subs, err := ps.ListByMerchant(ctx, m.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("len = %d, want 1", len(subs))
	}
}

func TestDeleteSubscription(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	other := createTestMerchant(t, db, "m2")
	ps := NewPushStore(db)
	ctx := context.Background()

	sub, _ := ps.CreateSubscription(ctx, m.ID, "https://push.example.com/a", "k", "a", "")
	ps.CreateSubscription(ctx, m.ID, "https://push.example.com/b", "k", "a", "")

	// Another merchant cannot delete it
	if err := ps.DeleteSubscription(ctx, other.ID, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ := ps.ListByMerchant(ctx, m.ID)
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}

	if err := ps.DeleteSubscription(ctx, m.ID, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ps.DeleteByEndpoint(ctx, "https://push.example.com/b"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ = ps.ListByMerchant(ctx, m.ID)
	if len(subs) != 0 {
		t.Errorf("len = %d, want 0", len(subs))
	}
}
