//go:build tools
// +build tools

// Package tools pins development tool dependencies so `go mod tidy` keeps
// them resolvable. The mocks under internal/mocks regenerate through
// `go run go.uber.org/mock/mockgen` (see the go:generate directives there),
// which resolves the binary from this module graph; no global install needed.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
