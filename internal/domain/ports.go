package domain

import (
	"context"
	"time"
)

// TokenRepository defines the persistence contract for tokens.
type TokenRepository interface {
	// Create inserts a token at the minimum stage and returns it with
	// its assigned id. A token is initialized exactly once, here.
	Create(ctx context.Context, token Token) (Token, error)
	GetByID(ctx context.Context, id int64) (Token, error)
	List(ctx context.Context, filter ListFilter) ([]Token, error)
}

// ListFilter holds optional criteria for listing tokens.
type ListFilter struct {
	Stage  *Stage
	Limit  int
	Offset int
}

// StateRepository owns the collection-wide state aggregate: the global
// trigger clock, the update budget, and the external reading cache.
type StateRepository interface {
	State(ctx context.Context) (CollectionState, error)
	// EnsureState seeds the singleton on first startup (last trigger
	// time = now) and applies the configured interval and budget cap.
	EnsureState(ctx context.Context, interval time.Duration, maxUpdates int) error
	// CommitAdvance applies one advance as a single transaction: the
	// token's new stage, the trigger timestamp, and in the data-driven
	// variant the consumed reading, request id and budget increment.
	CommitAdvance(ctx context.Context, commit AdvanceCommit) error
	// ResetBudget zeroes the update counter. Privileged.
	ResetBudget(ctx context.Context) error
	// StoreReading upserts a reading by request id. Idempotent.
	StoreReading(ctx context.Context, requestID string, r WeatherReading) error
	Reading(ctx context.Context, requestID string) (WeatherReading, error)
}

// AdvanceCommit is the atomic unit applied by a successful perform.
type AdvanceCommit struct {
	TokenID     int64
	NewStage    Stage
	TriggeredAt time.Time
	RequestID   string          // empty in the time-gated variant
	Reading     *WeatherReading // nil in the time-gated variant
}

// TransitionValidator validates single-step stage advancement.
type TransitionValidator interface {
	// Next returns the only stage reachable from current, or an
	// InvalidTransitionError at the maximum stage.
	Next(ctx context.Context, current Stage) (Stage, error)
}

// EventPublisher defines the contract for emitting collection events.
// The descriptor is the token's new metadata reference.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, token Token, descriptor string) error
}

// WeatherSource is the external oracle's pull interface. ReadingFor
// returns the opaque encoded form; decoding is the caller's concern.
type WeatherSource interface {
	CurrentRequestID(ctx context.Context) (string, error)
	ReadingFor(ctx context.Context, requestID string) ([]byte, error)
}

// Authorizer gates privileged operations (mint, budget reset) behind
// an explicit capability check, independent of any identity scheme.
type Authorizer interface {
	Authorize(ctx context.Context, key, op string) error
}
