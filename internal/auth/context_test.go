package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/loyalty/internal/model"
)

func TestWithMerchantAndFromContext(t *testing.T) {
	m := &model.Merchant{ID: 7, Name: "Coffee House"}
	ctx := WithMerchant(context.Background(), MerchantContext{Merchant: m, Admin: true})

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected MerchantContext in context")
	}
	if got.Merchant != m {
		t.Errorf("Merchant = %v, want %v", got.Merchant, m)
	}
	if MerchantID(ctx) != 7 {
		t.Errorf("MerchantID = %d, want 7", MerchantID(ctx))
	}
	if !IsAdmin(ctx) {
		t.Error("expected admin")
	}
}

func TestFromContextMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected false for missing MerchantContext")
	}
	if Merchant(ctx) != nil {
		t.Error("expected nil merchant")
	}
	if MerchantID(ctx) != 0 {
		t.Errorf("MerchantID = %d, want 0", MerchantID(ctx))
	}
	if IsAdmin(ctx) {
		t.Error("expected non-admin")
	}
}
