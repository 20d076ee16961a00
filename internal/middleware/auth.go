package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/sirupsen/logrus"
)

// Identity is the signed-in user as asserted by the identity provider.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the request identity; false means logged out.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UID != ""
}

// TokenVerifier verifies Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// InsecureVerifier trusts the bearer token as the user id. Development only.
type InsecureVerifier struct{}

func (InsecureVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	return &auth.Token{UID: idToken, Claims: map[string]interface{}{}}, nil
}

type AuthMiddleware struct {
	verifier TokenVerifier
	log      logrus.FieldLogger
}

func NewAuthMiddleware(verifier TokenVerifier, log logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, log: log}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
		"error":   "unauthorized",
	})
}

// Authenticate attaches the identity of a valid bearer token to the request context.
// Requests without a token pass through logged out; invalid tokens are rejected.
func (a *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeUnauthorized(w, "Malformed Authorization header")
			return
		}

		verified, err := a.verifier.VerifyIDToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			a.log.WithError(err).Warn("🚫 Rejected ID token")
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		id := Identity{UID: verified.UID}
		if email, ok := verified.Claims["email"].(string); ok {
			id.Email = email
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireIdentity rejects logged-out requests.
func (a *AuthMiddleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			writeUnauthorized(w, "Sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
