// Package testutil provides testing utilities for FORGE.
//
// This package contains mock errors and test helpers used across test files.
// It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for testing purposes.
// These errors are used to simulate various failure scenarios in tests.
var (
	// ErrMockTransport indicates a mock orchestrator transport failure.
	ErrMockTransport = errors.New("transport error")

	// ErrMockNotFound indicates a mock resource was not found.
	ErrMockNotFound = errors.New("not found")

	// ErrMockUpload indicates a mock file upload failure.
	ErrMockUpload = errors.New("upload failed")
)
