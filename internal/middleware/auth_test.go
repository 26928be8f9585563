package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campusconnect-mailer/internal/middleware"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

var secret = []byte("test-secret")

type directory map[string]model.Recipient

func (d directory) Resolve(context.Context, []string) ([]model.Recipient, error) { return nil, nil }
func (d directory) GetByID(_ context.Context, id string) (*model.Recipient, error) {
	if u, ok := d[id]; ok {
		return &u, nil
	}
	return nil, nil
}
func (d directory) ListActive(context.Context) ([]model.Recipient, error)               { return nil, nil }
func (d directory) ListActiveByRole(context.Context, string) ([]model.Recipient, error) { return nil, nil }

func sign(t *testing.T, key []byte, method jwtv5.SigningMethod, claims jwtv5.MapClaims) string {
	t.Helper()
	s, err := jwtv5.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serve(auth *middleware.Auth, token string) *httptest.ResponseRecorder {
	h := auth.Protect(middleware.StaffOrAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := middleware.UserFrom(r.Context())
		_, _ = w.Write([]byte(u.ID))
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/email/user-groups", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuth(t *testing.T) {
	auth := &middleware.Auth{Secret: secret, Directory: directory{
		"staff1": {ID: "staff1", Role: model.RoleStaff},
		"admin1": {ID: "admin1", Role: model.RoleAdmin},
		"stu1":   {ID: "stu1", Role: model.RoleStudent},
	}}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong key", sign(t, []byte("other"), jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "staff1", "exp": exp}), http.StatusUnauthorized},
		{"wrong alg", sign(t, secret, jwtv5.SigningMethodHS512, jwtv5.MapClaims{"id": "staff1", "exp": exp}), http.StatusUnauthorized},
		{"expired", sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "staff1", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no id", sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"exp": exp}), http.StatusUnauthorized},
		{"unknown user", sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "ghost", "exp": exp}), http.StatusUnauthorized},
		{"student", sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "stu1", "exp": exp}), http.StatusForbidden},
		{"staff", sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "staff1", "exp": exp}), http.StatusOK},
		{"admin", sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "admin1", "exp": exp}), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(auth, tc.token)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.status != http.StatusOK {
				assert.Contains(t, rr.Body.String(), `"message"`)
			}
		})
	}

	rr := serve(auth, sign(t, secret, jwtv5.SigningMethodHS256, jwtv5.MapClaims{"id": "admin1", "exp": exp}))
	assert.Equal(t, "admin1", rr.Body.String())
}
