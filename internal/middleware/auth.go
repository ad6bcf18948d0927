package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// MerchantLookup is satisfied by *store.MerchantStore.
type MerchantLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (*model.Merchant, error)
}

// RequireMerchant authenticates requests for the merchant named by the
// {merchant} path value (its store platform ID). The bearer token must match
// either the merchant's webhook secret or, when adminHash is set, the
// operator token. Browsers cannot set headers on websocket upgrades, so a
// token query parameter is accepted too.
func RequireMerchant(merchants MerchantLookup, adminHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			externalID := r.PathValue("merchant")
			if externalID == "" {
				writeError(w, http.StatusBadRequest, "merchant is required")
				return
			}

			m, err := merchants.GetByExternalID(r.Context(), externalID)
			if err != nil {
				logger.Error("load merchant", "merchant", externalID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to load merchant")
				return
			}
			if m == nil {
				writeError(w, http.StatusNotFound, "merchant not found")
				return
			}

			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing credentials")
				return
			}

			mc := auth.MerchantContext{Merchant: m}
			switch {
			case matches(adminHash, token):
				mc.Admin = true
			case matches(m.WebhookSecretHash, token):
			default:
				logger.Warn("rejected credentials", "merchant", externalID, "remote", RealIP(r))
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithMerchant(r.Context(), mc)))
		})
	}
}

// RequireAdmin checks that the request was authenticated with the operator token.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func matches(hash, token string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
