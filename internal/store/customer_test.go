package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
)

func TestCustomerCreate(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	cs := NewCustomerStore(db)
	ctx := context.Background()

	dob := time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC)
	c, err := cs.Create(ctx, m.ID, NewCustomer{ExternalID: "c-1", Name: "Omar", DateOfBirth: &dob})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if c.Points != 0 {
		t.Errorf("points = %d, want 0", c.Points)
	}
	if c.Tier != model.TierBronze {
		t.Errorf("tier = %q, want bronze", c.Tier)
	}
	if c.DateOfBirth == nil || c.DateOfBirth.Month() != time.March || c.DateOfBirth.Day() != 14 {
		t.Errorf("date_of_birth = %v", c.DateOfBirth)
	}

	got, err := cs.GetByExternalID(ctx, m.ID, "c-1")
	if err != nil {
		t.Fatalf("get by external id: %v", err)
	}
	if got == nil || got.ID != c.ID {
		t.Fatalf("got %+v, want customer %d", got, c.ID)
	}

	if _, err := cs.Create(ctx, m.ID, NewCustomer{ExternalID: "c-1"}); err == nil {
		t.Error("expected error on duplicate external id")
	}
}

func TestCustomerScopedToMerchant(t *testing.T) {
	db := setupTestDB(t)
	m1 := createTestMerchant(t, db, "m1")
	m2 := createTestMerchant(t, db, "m2")
	c := createTestCustomer(t, db, m1.ID, "c-1")

	got, err := NewCustomerStore(db).Get(context.Background(), m2.ID, c.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if got != nil {
		t.Error("customer should not be visible to another merchant")
	}
}

func TestIncrementOrderCount(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	c := createTestCustomer(t, db, m.ID, "c-1")
	cs := NewCustomerStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cs.IncrementOrderCount(ctx, m.ID, c.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, _ := cs.Get(ctx, m.ID, c.ID)
	if got.OrderCount != 3 {
		t.Errorf("order_count = %d, want 3", got.OrderCount)
	}
}

func TestApplyPoints(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	c := createTestCustomer(t, db, m.ID, "c-1")
	cs := NewCustomerStore(db)
	ctx := context.Background()

	res, err := cs.ApplyPoints(ctx, PointsChange{
		MerchantID:     m.ID,
		CustomerID:     c.ID,
		ExpectedPoints: 0,
		Delta:          1200,
		Tier:           model.TierSilver,
		Event:          "purchasePoints",
		Metadata:       map[string]any{"amount": "1200"},
	})
	if err != nil {
		t.Fatalf("apply points: %v", err)
	}
	if res.Customer.Points != 1200 {
		t.Errorf("points = %d, want 1200", res.Customer.Points)
	}
	if res.Customer.Tier != model.TierSilver {
		t.Errorf("tier = %q, want silver", res.Customer.Tier)
	}
	if res.MerchantPoints != 1200 {
		t.Errorf("merchant points = %d, want 1200", res.MerchantPoints)
	}
	if res.Activity.Points != 1200 || res.Activity.Event != "purchasePoints" {
		t.Errorf("activity = %+v", res.Activity)
	}
	if res.Activity.Metadata["amount"] != "1200" {
		t.Errorf("metadata = %v", res.Activity.Metadata)
	}

	res, err = cs.ApplyPoints(ctx, PointsChange{
		MerchantID:     m.ID,
		CustomerID:     c.ID,
		ExpectedPoints: 1200,
		Delta:          -200,
		Tier:           model.TierSilver,
		Event:          "pointsDeduction",
	})
	if err != nil {
		t.Fatalf("deduct points: %v", err)
	}
	if res.Customer.Points != 1000 || res.MerchantPoints != 1000 {
		t.Errorf("points = %d, merchant = %d, want 1000/1000", res.Customer.Points, res.MerchantPoints)
	}
}

func TestApplyPointsConflict(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	c := createTestCustomer(t, db, m.ID, "c-1")
	cs := NewCustomerStore(db)
	ctx := context.Background()

	_, err := cs.ApplyPoints(ctx, PointsChange{
		MerchantID:     m.ID,
		CustomerID:     c.ID,
		ExpectedPoints: 50,
		Delta:          10,
		Tier:           model.TierBronze,
		Event:          "welcomePoints",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	got, _ := cs.Get(ctx, m.ID, c.ID)
	if got.Points != 0 {
		t.Errorf("points = %d, want 0 after conflict", got.Points)
	}
	acts, err := NewActivityStore(db).ListByCustomer(ctx, m.ID, c.ID, 0)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 0 {
		t.Errorf("activities = %d, want 0 after conflict", len(acts))
	}
}

func TestApplyPointsRejectsNegativeBalance(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	c := createTestCustomer(t, db, m.ID, "c-1")

	_, err := NewCustomerStore(db).ApplyPoints(context.Background(), PointsChange{
		MerchantID: m.ID,
		CustomerID: c.ID,
		Delta:      -5,
		Tier:       model.TierBronze,
		Event:      "pointsDeduction",
	})
	if err == nil {
		t.Fatal("expected error for negative balance")
	}
}

func TestListByMerchantOrdersByPoints(t *testing.T) {
	db := setupTestDB(t)
	m := createTestMerchant(t, db, "m1")
	low := createTestCustomer(t, db, m.ID, "low")
	high := createTestCustomer(t, db, m.ID, "high")
	cs := NewCustomerStore(db)
	ctx := context.Background()

	if _, err := cs.ApplyPoints(ctx, PointsChange{
		MerchantID: m.ID, CustomerID: high.ID, Delta: 300, Tier: model.TierBronze, Event: "welcomePoints",
	}); err != nil {
		t.Fatalf("apply points: %v", err)
	}

	list, err := cs.ListByMerchant(ctx, m.ID)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != high.ID || list[1].ID != low.ID {
		t.Errorf("order = [%d %d], want [%d %d]", list[0].ID, list[1].ID, high.ID, low.ID)
	}
}
