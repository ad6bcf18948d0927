package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/loyalty/internal/database"
	"github.com/dukerupert/loyalty/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestMerchant(t *testing.T, db *sql.DB, externalID string) *model.Merchant {
	t.Helper()
	m, err := NewMerchantStore(db).Create(context.Background(), &model.Merchant{
		ExternalID: externalID,
		Name:       "Test Store",
		Username:   "teststore",
		LoyaltySettings: model.LoyaltySettings{
			model.RulePurchase: {Enabled: true},
		},
	})
	if err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	return m
}

func createTestCustomer(t *testing.T, db *sql.DB, merchantID int64, externalID string) *model.Customer {
	t.Helper()
	c, err := NewCustomerStore(db).Create(context.Background(), merchantID, NewCustomer{
		ExternalID: externalID,
		Name:       "Sara",
		Email:      "sara@example.com",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}
