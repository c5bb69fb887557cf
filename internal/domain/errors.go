package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized covers missing or unverifiable admin credentials.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	// ErrIdempotencyRequired guards destructive admin operations (clear, bulk invalidate).
	ErrIdempotencyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	// ErrWarmupInProgress signals that a full warmup pass is already running.
	// Concurrent triggers are no-ops rather than queued passes.
	ErrWarmupInProgress = errors.New("warmup already in progress")
	ErrVersionMismatch  = errors.New("entity version mismatch")
)
