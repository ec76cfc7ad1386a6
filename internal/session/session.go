// Package session stashes the most recent verification summary per client
// session so downstream form handlers can consume it exactly once.
package session

import (
	"context"
	"time"
)

// Summary is the stashed result of one successful verification.
type Summary struct {
	Token    string   `json:"token"`
	Score    *float64 `json:"score,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
	Action   string   `json:"action,omitempty"`
}

// Store is a one-shot stash keyed by session id. Take reads and clears in one
// operation so a stashed summary is never consumed twice; Clear discards any
// stale entry before a new verification attempt.
type Store interface {
	Put(ctx context.Context, sessionID string, summary Summary, ttl time.Duration) error
	Take(ctx context.Context, sessionID string) (*Summary, error)
	Clear(ctx context.Context, sessionID string) error
}
