package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid db execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrUnauthorized       = errors.New("unauthorized")

	// Pipeline
	ErrNoEnabledSteps     = errors.New("pipeline has no enabled steps")
	ErrSourceRequired     = errors.New("source video is required by the first enabled step")
	ErrUnknownStepKind    = errors.New("unknown step kind")
	ErrUnresolvedFanOut   = errors.New("fan-out step must be resolved into a batch before execution")
	ErrJobTerminal        = errors.New("job is already in a terminal state")
	ErrRequestIDMissing   = errors.New("no request ID stored for recovery")
	ErrProviderFailed     = errors.New("provider reported failure")
	ErrProviderStatusUnkn = errors.New("provider returned an unknown status")

	// Batch
	ErrRecipientsRequired = errors.New("at least one recipient is required")
	ErrBatchOverflow      = errors.New("batch counters would exceed total jobs")

	// Publish
	ErrJobNotPublishable = errors.New("job is not completed or has no output")
	ErrLockHeld          = errors.New("lock is held by another worker")
	ErrNoPublishTargets  = errors.New("no distribution accounts to publish to")

	// Recovery
	ErrSweepCooldown = errors.New("recovery sweep ran too recently")

	// Workers
	ErrQueueFull = errors.New("worker queue full")
)
