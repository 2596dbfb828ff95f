// Package mocks provides mock implementations for testing the auth session core.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// Hand-written in-memory doubles live in the auth subpackage.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockIdentityBackend(ctrl)
//	backend.EXPECT().PasswordGrant(gomock.Any(), "a@b.edu", "secret").Return(sess, nil)
package mocks

// Generate mock for IdentityBackend interface from internal/ports package.
// This creates MockIdentityBackend with methods for all IdentityBackend interface methods:
// PasswordGrant, Register, Refresh, Revoke
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_backend_mock.go github.com/acadvault/acadvault-api/internal/ports IdentityBackend

// Generate mock for ProfileStore interface from internal/ports package.
// This creates MockProfileStore with methods for all ProfileStore interface methods:
// FindProfileBySubjectID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_store_mock.go github.com/acadvault/acadvault-api/internal/ports ProfileStore
