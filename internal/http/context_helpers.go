package httpx

import (
	"context"

	"github.com/acadvault/acadvault-api/internal/service"
)

// storeKey is an unexported context key type to avoid collisions across packages.
type storeKey struct{}

// clientIDKey carries the user agent id from the client cookie.
type clientIDKey struct{}

// SetStoreInContext returns a child context that carries the user agent's SessionStore.
// If store is nil, the original ctx is returned unchanged.
func SetStoreInContext(ctx context.Context, clientID string, store *service.SessionStore) context.Context {
	if store == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, clientIDKey{}, clientID)
	return context.WithValue(ctx, storeKey{}, store)
}

// StoreFromContext returns the SessionStore from context and a boolean indicating presence.
func StoreFromContext(ctx context.Context) (*service.SessionStore, bool) {
	if s, ok := ctx.Value(storeKey{}).(*service.SessionStore); ok && s != nil {
		return s, true
	}
	return nil, false
}

// MustStoreFromContext returns the SessionStore or panics when ClientSession did not run.
func MustStoreFromContext(ctx context.Context) *service.SessionStore {
	s, ok := StoreFromContext(ctx)
	if !ok {
		panic("httpx: no SessionStore in request context; is ClientSession middleware installed?")
	}
	return s
}

// ClientIDFromContext returns the user agent id, or "" outside ClientSession.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
