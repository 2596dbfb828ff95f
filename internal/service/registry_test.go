package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mockauth "github.com/acadvault/acadvault-api/internal/mocks/auth"
)

type registryFixture struct {
	mu        sync.Mutex
	providers map[string]*mockauth.FakeIdentityProvider
	profiles  *mockauth.MemoryProfileStore
}

func (f *registryFixture) factory(clientID string) (*SessionStore, error) {
	provider := mockauth.NewFakeIdentityProvider()
	f.mu.Lock()
	f.providers[clientID] = provider
	f.mu.Unlock()
	return NewSessionStore(SessionStoreOptions{Provider: provider, Profiles: f.profiles})
}

func (f *registryFixture) provider(clientID string) *mockauth.FakeIdentityProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[clientID]
}

func newRegistryFixture(t *testing.T, size int) (*StoreRegistry, *registryFixture) {
	t.Helper()
	f := &registryFixture{providers: map[string]*mockauth.FakeIdentityProvider{}, profiles: mockauth.NewMemoryProfileStore()}
	reg, err := NewStoreRegistry(StoreRegistryOptions{Factory: f.factory, Size: size, IdleTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg, f
}

func TestNewStoreRegistry_RequiresFactory(t *testing.T) {
	_, err := NewStoreRegistry(StoreRegistryOptions{})
	require.Error(t, err)
}

func TestStoreRegistry_GetReusesStore(t *testing.T) {
	reg, _ := newRegistryFixture(t, 10)

	a, err := reg.Get("client-a")
	require.NoError(t, err)
	again, err := reg.Get("client-a")
	require.NoError(t, err)
	b, err := reg.Get("client-b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())

	st := a.WaitSettled(context.Background())
	assert.False(t, st.Loading)

	_, err = reg.Get("")
	require.Error(t, err)
}

func TestStoreRegistry_EvictionClosesStore(t *testing.T) {
	reg, f := newRegistryFixture(t, 1)

	first, err := reg.Get("client-a")
	require.NoError(t, err)
	first.WaitSettled(context.Background())
	require.Eventually(t, func() bool { return f.provider("client-a").Listeners() == 1 }, time.Second, 5*time.Millisecond)

	_, err = reg.Get("client-b")
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len())
	assert.Zero(t, f.provider("client-a").Listeners())
}

func TestStoreRegistry_RemoveClosesStore(t *testing.T) {
	reg, f := newRegistryFixture(t, 10)

	s, err := reg.Get("client-a")
	require.NoError(t, err)
	s.WaitSettled(context.Background())

	reg.Remove("client-a")
	assert.Zero(t, reg.Len())
	assert.Zero(t, f.provider("client-a").Listeners())
}

type gaugeSink struct {
	mu     sync.Mutex
	gauges []float64
}

func (g *gaugeSink) Count(string, int64, map[string]string)          {}
func (g *gaugeSink) Timing(string, time.Duration, map[string]string) {}

func (g *gaugeSink) Gauge(name string, value float64, _ map[string]string) {
	if name != "auth.client_stores" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gauges = append(g.gauges, value)
}

func (g *gaugeSink) values() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]float64(nil), g.gauges...)
}

func TestStoreRegistry_GaugeTracksEvictionAndRemoval(t *testing.T) {
	f := &registryFixture{providers: map[string]*mockauth.FakeIdentityProvider{}, profiles: mockauth.NewMemoryProfileStore()}
	sink := &gaugeSink{}
	reg, err := NewStoreRegistry(StoreRegistryOptions{Factory: f.factory, Size: 1, IdleTTL: time.Hour, Metrics: sink})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	_, err = reg.Get("client-a")
	require.NoError(t, err)
	_, err = reg.Get("client-b")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	reg.Remove("client-b")
	assert.Zero(t, reg.Len())

	assert.Equal(t, []float64{1, 2, 1, 0}, sink.values())
}

func TestStoreRegistry_FactoryError(t *testing.T) {
	reg, err := NewStoreRegistry(StoreRegistryOptions{
		Factory: func(string) (*SessionStore, error) { return nil, errors.New("no backend") },
	})
	require.NoError(t, err)

	_, err = reg.Get("client-a")
	require.Error(t, err)
	assert.Zero(t, reg.Len())
}

func TestStoreRegistry_CloseDrains(t *testing.T) {
	reg, _ := newRegistryFixture(t, 10)
	for _, id := range []string{"a", "b", "c"} {
		s, err := reg.Get(id)
		require.NoError(t, err)
		s.WaitSettled(context.Background())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Close(ctx))
	assert.Zero(t, reg.Len())
}
