//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// Air - Live reload while editing templates and handlers
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: air --build.cmd "go build -o ./tmp/acadvault ./cmd/acadvault" --build.bin ./tmp/acadvault
//   Docs: https://github.com/air-verse/air
//
// mockgen - Regenerates internal/mocks from the port interfaces
//   Invoked through go generate ./internal/mocks (pinned to v0.6.0 there)
//   Docs: https://github.com/uber-go/mock
