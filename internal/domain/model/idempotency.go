package model

import "time"

type IdempotencyStatus string

const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

type IdempotencyKey struct {
	Key       string
	Scope     string
	Status    IdempotencyStatus
	Response  []byte // stored JSON summary once completed
	CreatedAt time.Time
	ExpiresAt time.Time
}
