package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"foodtrace/pkg/requestcontext"
)

// AdminValidator checks bearer tokens presented on administrative routes and
// returns the identity the token was issued to.
type AdminValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// JWTAdminValidator validates HS256 tokens signed with the configured key.
type JWTAdminValidator struct {
	signingKey []byte
}

func NewJWTAdminValidator(signingKey string) *JWTAdminValidator {
	return &JWTAdminValidator{signingKey: []byte(signingKey)}
}

func (v *JWTAdminValidator) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse admin token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("admin token missing subject")
	}
	return subject, nil
}

// IssueToken mints an admin token for the given identity. Used by
// provisioning tooling and tests.
func (v *JWTAdminValidator) IssueToken(identity string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": identity,
	})
	return token.SignedString(v.signingKey)
}

// RequireAdmin gates administrative routes. The token subject becomes the
// caller identity; the identity service still verifies it against the
// current admin, so a token issued to a demoted admin stops working the
// moment the admin transfer lands.
func RequireAdmin(validator AdminValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(r.Context(), "admin route without bearer token",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeUnauthorized(w)
				return
			}
			subject, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "admin token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeUnauthorized(w)
				return
			}
			ctx := requestcontext.WithCaller(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
