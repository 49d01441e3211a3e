package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims are the claims an operator token must carry.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type ctxKey string

const adminSubjectKey ctxKey = "admin_subject"

// AdminAuth gates operator endpoints behind an HS256 bearer token with role=admin.
type AdminAuth struct {
	Secret []byte
	Now    func() time.Time
}

func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{Secret: []byte(strings.TrimSpace(secret))}
}

// Middleware rejects requests without a valid admin token. With no secret configured every
// request is refused.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.Secret) == 0 {
			respondAuthError(w, http.StatusServiceUnavailable, "admin_auth_not_configured", "ADMIN_JWT_SECRET is not set")
			return
		}
		raw := bearerToken(r)
		if raw == "" {
			respondAuthError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer <token> is required")
			return
		}
		claims, err := a.Validate(raw)
		if err != nil {
			respondAuthError(w, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		if claims.Role != "admin" {
			respondAuthError(w, http.StatusForbidden, "forbidden", "token does not carry the admin role")
			return
		}
		ctx := context.WithValue(r.Context(), adminSubjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Validate parses and verifies raw, returning its claims.
func (a *AdminAuth) Validate(raw string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}
	token, err := jwt.ParseWithClaims(raw, &AdminClaims{}, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AdminSubject returns the sub claim of the authenticated operator, if any.
func AdminSubject(ctx context.Context) string {
	s, _ := ctx.Value(adminSubjectKey).(string)
	return s
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func respondAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
