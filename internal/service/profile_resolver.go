package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	"github.com/acadvault/acadvault-api/internal/observability/metrics"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
	"github.com/acadvault/acadvault-api/internal/ports"
)

// ProfileStatus describes the outcome of the latest profile fetch.
type ProfileStatus string

const (
	// ProfileStatusNone means there is no identity to resolve.
	ProfileStatusNone ProfileStatus = "none"
	// ProfileStatusLoading means a fetch for the current identity is in flight.
	ProfileStatusLoading ProfileStatus = "loading"
	// ProfileStatusReady means the profile was found.
	ProfileStatusReady ProfileStatus = "ready"
	// ProfileStatusMissing means the store has no profile for the identity.
	ProfileStatusMissing ProfileStatus = "missing"
	// ProfileStatusUnavailable means the lookup failed for another reason.
	ProfileStatusUnavailable ProfileStatus = "unavailable"
)

// ProfileSnapshot is a consistent view of the resolver's state.
type ProfileSnapshot struct {
	SubjectID string
	Profile   *domainauth.Profile
	Loading   bool
	Status    ProfileStatus
}

// ProfileResolverOptions groups dependencies for ProfileResolver.
type ProfileResolverOptions struct {
	Store ports.ProfileStore
	// Timeout bounds each fetch. Defaults to 5s.
	Timeout time.Duration
	// OnChange is called after an asynchronous fetch result has been applied.
	// It is never called from OnIdentityChange itself.
	OnChange func()
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// ProfileResolver maps the current identity to its application profile.
// Each identity change starts one fetch tagged with a generation; results whose
// tag is no longer current are dropped.
type ProfileResolver struct {
	store    ports.ProfileStore
	timeout  time.Duration
	onChange func()
	metrics  statsd.Sink
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	snap       ProfileSnapshot
	closed     bool

	inflight sync.WaitGroup
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(opts ProfileResolverOptions) (*ProfileResolver, error) {
	if opts.Store == nil {
		return nil, errors.New("ProfileStore is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileResolver{
		store:    opts.Store,
		timeout:  timeout,
		onChange: opts.OnChange,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "profile_resolver"),
		snap:     ProfileSnapshot{Status: ProfileStatusNone},
	}, nil
}

// OnIdentityChange records a new identity. A nil identity clears the profile
// immediately; otherwise the resolver enters loading and fetches in the background.
func (r *ProfileResolver) OnIdentityChange(identity *domainauth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	if identity == nil || r.closed {
		r.snap = ProfileSnapshot{Status: ProfileStatusNone}
		return
	}

	gen := r.generation
	subject := identity.ID
	r.snap = ProfileSnapshot{SubjectID: subject, Loading: true, Status: ProfileStatusLoading}

	r.inflight.Add(1)
	go r.fetch(gen, subject)
}

func (r *ProfileResolver) fetch(gen uint64, subject string) {
	defer r.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	profile, err := r.store.FindProfileBySubjectID(ctx, subject)
	status := ProfileStatusReady
	switch {
	case errors.Is(err, domainauth.ErrProfileNotFound):
		status = ProfileStatusMissing
		profile = nil
	case err != nil:
		status = ProfileStatusUnavailable
		profile = nil
	case profile == nil:
		status = ProfileStatusMissing
	}
	metrics.EmitProfileFetch(r.metrics, string(status), time.Since(start))

	if !r.apply(gen, subject, profile, status) {
		r.logger.Debug("discarding stale profile fetch", "user_id", subject)
		return
	}

	switch status {
	case ProfileStatusMissing:
		r.logger.Warn("no profile for identity", "user_id", subject)
	case ProfileStatusUnavailable:
		r.logger.Error("profile fetch failed", "user_id", subject, "error", fmt.Errorf("find profile: %w", err))
	}

	if r.onChange != nil {
		r.onChange()
	}
}

func (r *ProfileResolver) apply(gen uint64, subject string, profile *domainauth.Profile, status ProfileStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.generation || r.snap.SubjectID != subject {
		return false
	}
	r.snap = ProfileSnapshot{SubjectID: subject, Profile: profile, Status: status}
	return true
}

// Snapshot returns the current state.
func (r *ProfileResolver) Snapshot() ProfileSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snap
	if snap.Profile != nil {
		p := *snap.Profile
		snap.Profile = &p
	}
	return snap
}

// Wait blocks until every started fetch has finished.
func (r *ProfileResolver) Wait() {
	r.inflight.Wait()
}

// Close invalidates in-flight fetches and ignores later identity changes.
func (r *ProfileResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.generation++
	r.snap = ProfileSnapshot{Status: ProfileStatusNone}
}
