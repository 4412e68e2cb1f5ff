package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

const DefaultCookieName = "sessionId"

// ErrNoSession means the request carried no session cookie at all.
var ErrNoSession = errors.New("no session cookie")

type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (User, error)
}

// Gate resolves the caller's identity from the session cookie. HTTP routes go
// through Middleware; the WebSocket upgrade calls Identify directly so it can
// refuse the handshake before a connection exists.
type Gate struct {
	resolver   SessionResolver
	cookieName string
}

func NewGate(resolver SessionResolver, cookieName string) *Gate {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Gate{resolver: resolver, cookieName: cookieName}
}

func (g *Gate) CookieName() string {
	return g.cookieName
}

// Identify returns ErrNoSession, ErrInvalidToken, or a wrapped store error
// when the caller cannot be resolved.
func (g *Gate) Identify(r *http.Request) (Identity, error) {
	c, err := r.Cookie(g.cookieName)
	if err != nil || c.Value == "" {
		return Identity{}, ErrNoSession
	}
	if g.resolver == nil {
		return Identity{}, ErrInvalidToken
	}
	u, err := g.resolver.ResolveSession(r.Context(), c.Value)
	if err != nil {
		return Identity{}, err
	}
	return Identity{User: u, SessionToken: c.Value}, nil
}

// Middleware lets anonymous requests through with no identity attached.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Identify(r)
		switch {
		case err == nil:
			r = r.WithContext(WithIdentity(r.Context(), id))
		case IsUnauthenticated(err):
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsUnauthenticated reports whether err means "anonymous" rather than a
// persistence failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrNoSession) || errors.Is(err, ErrInvalidToken)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
