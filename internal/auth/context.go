// Package auth carries the authenticated merchant through a request context.
package auth

import (
	"context"

	"github.com/dukerupert/loyalty/internal/model"
)

type contextKey struct{}

// MerchantContext identifies the merchant a request was authenticated for.
type MerchantContext struct {
	Merchant *model.Merchant
	// Admin is set for operator credentials, which may act on any merchant.
	Admin bool
}

func WithMerchant(ctx context.Context, mc MerchantContext) context.Context {
	return context.WithValue(ctx, contextKey{}, mc)
}

func FromContext(ctx context.Context) (MerchantContext, bool) {
	mc, ok := ctx.Value(contextKey{}).(MerchantContext)
	return mc, ok
}

// Merchant returns the authenticated merchant, or nil.
func Merchant(ctx context.Context) *model.Merchant {
	mc, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return mc.Merchant
}

func MerchantID(ctx context.Context) int64 {
	m := Merchant(ctx)
	if m == nil {
		return 0
	}
	return m.ID
}

func IsAdmin(ctx context.Context) bool {
	mc, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return mc.Admin
}
