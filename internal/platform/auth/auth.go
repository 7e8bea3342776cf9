package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrInvalidToken is returned by verifiers for unknown or malformed tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier is the opaque authentication capability: given a bearer
// token it returns the id of the owner it identifies. The dashboard backs
// this with its JWT service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (ownerID string, err error)
}

type ownerKey struct{}

// WithOwner returns a context carrying the authenticated owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the authenticated owner id, if any.
func OwnerFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerKey{}).(string)
	return ownerID, ok
}

// Middleware returns chi-compatible middleware that requires a valid
// "Authorization: Bearer <token>" header and stores the verified owner id in
// the request context.
func Middleware(v TokenVerifier, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			ownerID, err := v.Verify(r.Context(), token)
			if err != nil {
				log.Debug("token verification failed", slog.String("error", err.Error()))
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

// StaticVerifier maps fixed tokens to owner ids. It stands in for the
// dashboard's JWT service when running the binary standalone.
type StaticVerifier map[string]string

// ParseStaticVerifier builds a StaticVerifier from a comma-separated list of
// token=owner pairs (the AUTH_TOKENS configuration format). Malformed pairs
// are skipped.
func ParseStaticVerifier(s string) StaticVerifier {
	v := make(StaticVerifier)
	for _, pair := range strings.Split(s, ",") {
		token, owner, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || owner == "" {
			continue
		}
		v[token] = owner
	}
	return v
}

// Verify implements TokenVerifier.
func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	ownerID, ok := v[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return ownerID, nil
}
