package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SessionPersistence = (*MemorySessionPersistence)(nil)
	_ ports.ProfileStore       = (*MemoryProfileStore)(nil)
	_ ports.ProfileProvisioner = (*MemoryProfileStore)(nil)
)

// MemorySessionPersistence is an in-memory ports.SessionPersistence.
type MemorySessionPersistence struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	// LoadErr, when set, is returned by Load to simulate storage outages.
	LoadErr error
}

// NewMemorySessionPersistence creates an empty MemorySessionPersistence.
func NewMemorySessionPersistence() *MemorySessionPersistence {
	return &MemorySessionPersistence{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionPersistence) Load(_ context.Context, key string) (*domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	sess, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (m *MemorySessionPersistence) Save(_ context.Context, key string, sess *domainauth.Session) error {
	if key == "" {
		return errors.New("session key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess == nil {
		delete(m.sessions, key)
		return nil
	}
	m.sessions[key] = *sess
	return nil
}

func (m *MemorySessionPersistence) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

// Len reports how many sessions are stored.
func (m *MemorySessionPersistence) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MemoryProfileStore is an in-memory profile store with optional hooks.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domainauth.Profile
	calls    map[string]int

	// FindFunc overrides lookups entirely when set.
	FindFunc func(ctx context.Context, subjectID string) (*domainauth.Profile, error)
}

// NewMemoryProfileStore creates a store seeded with profiles keyed by UserID.
func NewMemoryProfileStore(profiles ...domainauth.Profile) *MemoryProfileStore {
	m := &MemoryProfileStore{
		profiles: make(map[string]domainauth.Profile),
		calls:    make(map[string]int),
	}
	for _, p := range profiles {
		m.profiles[p.UserID] = p
	}
	return m
}

func (m *MemoryProfileStore) FindProfileBySubjectID(ctx context.Context, subjectID string) (*domainauth.Profile, error) {
	m.mu.Lock()
	m.calls[subjectID]++
	fn := m.FindFunc
	p, ok := m.profiles[subjectID]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, subjectID)
	}
	if !ok {
		return nil, domainauth.ErrProfileNotFound
	}
	return &p, nil
}

func (m *MemoryProfileStore) ProvisionProfile(
	_ context.Context,
	identity domainauth.Identity,
	meta domainauth.SignUpMetadata,
) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[identity.ID]; ok {
		return &existing, nil
	}
	meta = meta.Normalize()
	p := domainauth.Profile{
		ID:         "profile-" + identity.ID,
		UserID:     identity.ID,
		Email:      identity.Email,
		FullName:   meta.FullName,
		Role:       meta.Role,
		Department: meta.Department,
		RollNumber: meta.RollNumber,
	}
	m.profiles[identity.ID] = p
	return &p, nil
}

// Put inserts or replaces a profile.
func (m *MemoryProfileStore) Put(p domainauth.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

// Calls reports how many lookups were made for subjectID.
func (m *MemoryProfileStore) Calls(subjectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[subjectID]
}
