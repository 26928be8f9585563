// internal/middleware/auth.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

type ctxKey struct{}

// Auth verifies bearer tokens issued by the portal's auth service. It never
// issues tokens itself.
type Auth struct {
	Secret    []byte
	Directory repository.RecipientRepositoryInterface
	Leeway    time.Duration
}

// Protect requires a valid HS256 token whose "id" claim names an existing user.
func (a *Auth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		userID, err := a.verify(raw)
		if err != nil {
			logger.From(r.Context()).Debug("token rejected", logger.Err(err))
			writeMessage(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		user, err := a.Directory.GetByID(r.Context(), userID)
		if err != nil {
			logger.From(r.Context()).Error("user lookup failed", logger.SenderID(userID), logger.Err(err))
			writeMessage(w, http.StatusInternalServerError, "Server error")
			return
		}
		if user == nil {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, user not found")
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.SenderID(user.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StaffOrAdmin must run after Protect.
func StaffOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFrom(r.Context())
		if !ok || !user.CanManageCampaigns() {
			writeMessage(w, http.StatusForbidden, "Access denied. Staff or admin only.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) verify(raw string) (string, error) {
	claims := jwtv5.MapClaims{}
	_, err := jwtv5.ParseWithClaims(raw, claims, func(*jwtv5.Token) (any, error) {
		return a.Secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithLeeway(a.Leeway))
	if err != nil {
		return "", err
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return "", errors.New("token has no id claim")
	}
	return id, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func WithUser(ctx context.Context, u *model.Recipient) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user stored by Protect.
func UserFrom(ctx context.Context) (*model.Recipient, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.Recipient)
	return u, ok && u != nil
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
