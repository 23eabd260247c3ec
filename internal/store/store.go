// Package store provides pluggable persistence for pending challenges.
package store

import (
	"context"
	"time"

	"github.com/agentauth/agentauth/internal/challenge"
)

// ChallengeStore persists pending challenges for their TTL window. A missing
// or expired challenge is reported as (nil, nil); errors are reserved for
// backend failures. Delete reports whether a record was actually removed, so
// concurrent consumers can tell who won: exactly one caller sees true per
// stored record.
type ChallengeStore interface {
	Set(ctx context.Context, id string, record *challenge.Record, ttl time.Duration) error
	Get(ctx context.Context, id string) (*challenge.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
}
