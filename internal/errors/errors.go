// Package errors provides centralized error handling for FORGE.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrInvalidJobMessage indicates the inbound job message is missing a
	// required field (environment, endpoints, variables, or plan).
	ErrInvalidJobMessage = errors.New("invalid job message")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrPercentOutOfRange indicates a percent-complete value outside [0,100].
	ErrPercentOutOfRange = errors.New("percent complete out of range")

	// ErrDetailRecordType indicates a job-typed record was passed to the
	// detail timeline, which only accepts sub-task granularity.
	ErrDetailRecordType = errors.New("detail record cannot describe a job")

	// ErrAttachmentNotFound indicates the file passed for upload does not
	// exist on disk.
	ErrAttachmentNotFound = errors.New("attachment file not found")

	// ErrQueueStopped indicates an enqueue was attempted after the upload
	// queue finished draining.
	ErrQueueStopped = errors.New("upload queue stopped")

	// ErrPageNotSetup indicates a log page operation on a record id that was
	// never registered with Setup.
	ErrPageNotSetup = errors.New("log page not set up")

	// ErrContextCompleted indicates a mutation was attempted on an execution
	// context that already completed.
	ErrContextCompleted = errors.New("execution context already completed")

	// ErrConfigInvalid indicates an invalid agent setting value.
	ErrConfigInvalid = errors.New("invalid agent configuration")

	// ErrStepFailed indicates a pipeline step exited unsuccessfully.
	ErrStepFailed = errors.New("step failed")
)
